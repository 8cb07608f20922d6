package utils

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const (
	// EPUBExtension is appended to every stored book file.
	EPUBExtension = ".epub"

	maxFallbackTitleLength = 50
)

var (
	// Characters invalid in filenames on most filesystems
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	// Multiple spaces to collapse
	multipleSpaces = regexp.MustCompile(`\s+`)
	// Runs of anything outside the portable filename alphabet
	nonPortableRuns = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

	extendedFilenameParam = regexp.MustCompile(`(?i)filename\*\s*=\s*UTF-8''([^;]+)`)
	quotedFilenameParam   = regexp.MustCompile(`(?i)filename\s*=\s*"([^"]*)"`)
	plainFilenameParam    = regexp.MustCompile(`(?i)filename\s*=\s*([^";\s]+)`)
)

// SanitizeFilename makes a server-provided filename safe to create on disk.
// Returns an empty string when nothing usable is left.
func SanitizeFilename(filename string) string {
	filename = invalidFilenameChars.ReplaceAllString(filename, "")
	filename = multipleSpaces.ReplaceAllString(filename, " ")
	filename = strings.TrimSpace(filename)
	filename = strings.Trim(filename, ".")

	if len(filename) > 200 {
		ext := path.Ext(filename)
		filename = strings.TrimSpace(filename[:200-len(ext)]) + ext
	}
	return filename
}

// FallbackBookFileName derives the deterministic filename a book is stored
// under when the server does not name it. Any two calls with the same title
// and ID produce the same name.
func FallbackBookFileName(title string, bookID int) string {
	clean := nonPortableRuns.ReplaceAllString(strings.TrimSpace(title), "_")
	if len(clean) > maxFallbackTitleLength {
		clean = clean[:maxFallbackTitleLength]
	}
	clean = strings.Trim(clean, "_")

	if clean == "" {
		return fmt.Sprintf("book_%d%s", bookID, EPUBExtension)
	}
	return fmt.Sprintf("%s_%d%s", clean, bookID, EPUBExtension)
}

// FileNameFromContentDisposition extracts the filename of an attachment.
// The RFC 5987 form is preferred over the quoted one; percent-encoded values
// are decoded and only the base name is returned. Empty when absent.
func FileNameFromContentDisposition(header string) string {
	if header == "" {
		return ""
	}

	if m := extendedFilenameParam.FindStringSubmatch(header); m != nil {
		if decoded, err := url.PathUnescape(strings.TrimSpace(m[1])); err == nil {
			return baseName(decoded)
		}
	}

	var raw string
	if m := quotedFilenameParam.FindStringSubmatch(header); m != nil {
		raw = m[1]
	} else if m := plainFilenameParam.FindStringSubmatch(header); m != nil {
		raw = m[1]
	}
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "%") {
		if decoded, err := url.PathUnescape(raw); err == nil {
			raw = decoded
		}
	}
	return baseName(raw)
}

func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// EnsureEPUBExtension appends the EPUB extension when name lacks it.
func EnsureEPUBExtension(name string) string {
	if strings.HasSuffix(strings.ToLower(name), EPUBExtension) {
		return name
	}
	return name + EPUBExtension
}
