package covers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const maxCoverSize = 10 << 20

// Cache handles local caching of book cover images.
type Cache struct {
	cacheDir   string
	baseURL    *url.URL
	httpClient *http.Client
}

// NewCache creates a new cover cache at the specified directory. Relative
// cover URLs are resolved against baseURL, which may be empty.
func NewCache(cacheDir, baseURL string) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	var base *url.URL
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse cover base url: %w", err)
		}
		base = parsed
	}

	return &Cache{
		cacheDir: cacheDir,
		baseURL:  base,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// GetCover returns the cached cover for a book, or fetches and caches it if not present.
// Returns the file path to the cached cover, or empty string if unavailable.
func (c *Cache) GetCover(ctx context.Context, bookID int, coverURL string) (string, error) {
	if coverURL == "" {
		return "", nil
	}

	resolved, err := c.resolve(coverURL)
	if err != nil {
		return "", err
	}

	filename := c.coverFilename(bookID, resolved)
	cachePath := filepath.Join(c.cacheDir, filename)

	if info, err := os.Stat(cachePath); err == nil && info.Size() > 0 {
		return cachePath, nil
	}

	if err := c.fetchAndCache(ctx, resolved, cachePath); err != nil {
		return "", err
	}

	return cachePath, nil
}

// InvalidateCover removes the cached cover for a book.
func (c *Cache) InvalidateCover(bookID int) error {
	pattern := filepath.Join(c.cacheDir, fmt.Sprintf("cover_%d_*", bookID))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}

// ContentType sniffs the media type of a cached cover.
func ContentType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

func (c *Cache) resolve(coverURL string) (string, error) {
	u, err := url.Parse(coverURL)
	if err != nil {
		return "", fmt.Errorf("parse cover url: %w", err)
	}
	if u.IsAbs() || c.baseURL == nil {
		return u.String(), nil
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

// coverFilename generates a unique filename based on book ID and URL hash.
func (c *Cache) coverFilename(bookID int, coverURL string) string {
	hash := sha256.Sum256([]byte(coverURL))
	return fmt.Sprintf("cover_%d_%x.img", bookID, hash[:8])
}

// fetchAndCache downloads a cover image and saves it to the cache.
func (c *Cache) fetchAndCache(ctx context.Context, url, cachePath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "BookLibrary/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch cover: status %d", resp.StatusCode)
	}

	// Create temp file in same directory for atomic write
	tmpFile, err := os.CreateTemp(c.cacheDir, "cover_tmp_")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	n, err := io.Copy(tmpFile, io.LimitReader(resp.Body, maxCoverSize))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("failed to fetch cover: empty body")
	}

	tmpFile.Close()

	return os.Rename(tmpPath, cachePath)
}

// CacheDir returns the cache directory path.
func (c *Cache) CacheDir() string {
	return c.cacheDir
}
