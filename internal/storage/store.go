// Package storage abstracts where downloaded books are written.
//
// Two providers exist: providers/filesystem writes plain files into a
// directory and addresses them by path, providers/mediaindex keeps a media
// index table next to the files and addresses them by content URI.
package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"
)

// ContentURIScheme prefixes locations that live in the media index.
const ContentURIScheme = "content://"

// ErrNotFound is returned when a location does not resolve to a stored file.
var ErrNotFound = errors.New("stored file not found")

// FileInfo describes a stored file.
type FileInfo struct {
	Name       string
	Location   string
	Size       int64
	MimeType   string
	ModifiedAt time.Time
}

// Sink receives the bytes of a file being stored. Exactly one of Commit or
// Abort must be called; Abort removes everything written so far.
type Sink interface {
	io.Writer
	// Location is the path or URI the file will be reachable under.
	Location() string
	Commit() error
	Abort() error
}

// Store defines the operations the download manager needs from a storage backend.
type Store interface {
	// Create opens a sink for a new file with the given display name.
	Create(ctx context.Context, name, mimeType string) (Sink, error)

	// Find looks up a non-empty stored file by display name.
	Find(ctx context.Context, name string) (location string, found bool, err error)

	// Verify reports whether the location resolves to a non-empty regular file.
	Verify(ctx context.Context, location string) bool

	// Remove deletes the file at location. Missing files are not an error.
	Remove(ctx context.Context, location string) error

	// List returns every stored file.
	List(ctx context.Context) ([]FileInfo, error)
}

// Opener is implemented by stores whose locations are not file paths.
type Opener interface {
	// Open returns the path of the file backing location.
	Open(ctx context.Context, location string) (string, error)
}

// IsContentURI reports whether location is a media index URI.
func IsContentURI(location string) bool {
	return strings.HasPrefix(location, ContentURIScheme)
}

// VerifyPath reports whether path is an existing regular file with data.
func VerifyPath(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// RemovePath deletes a file, ignoring files that are already gone.
func RemovePath(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
