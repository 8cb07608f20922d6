// Package downloads stores EPUB files of catalog books on this device and
// keeps the cached download state of every book honest.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/mrlokans/booklibrary/internal/catalog"
	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/storage"
	"github.com/mrlokans/booklibrary/internal/utils"
)

// DefaultChunkSize is the copy buffer size; progress is reported once per chunk.
const DefaultChunkSize = 8 << 10

// BookStore is the part of the local cache the manager reads and updates.
type BookStore interface {
	GetBookByID(id int) (*entities.Book, error)
	UpsertBook(book *entities.Book) error
	UpdateDownloadStatus(id int, downloaded bool, path string) error
}

// Source is the part of the catalog client the manager needs.
type Source interface {
	GetBook(ctx context.Context, id int) (*catalog.BookDTO, error)
	DownloadEPUB(ctx context.Context, id int) (*catalog.Download, error)
}

// ProgressFunc receives download progress events in order.
type ProgressFunc func(Progress)

// Manager downloads books and answers whether a book is stored locally.
// Concurrent downloads of different books are independent; concurrent
// downloads of the same book are not deduplicated here.
type Manager struct {
	books     BookStore
	source    Source
	store     storage.Store
	chunkSize int
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithChunkSize sets the copy buffer size.
func WithChunkSize(size int) Option {
	return func(m *Manager) {
		if size > 0 {
			m.chunkSize = size
		}
	}
}

// NewManager creates a download manager.
func NewManager(books BookStore, source Source, store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		books:     books,
		source:    source,
		store:     store,
		chunkSize: DefaultChunkSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsDownloaded reports whether a non-empty copy of the book is stored.
//
// The cached location is verified first; a stale flag is cleared. Then the
// store is searched for the deterministic fallback filename, and a hit is
// written back to the cache. Remote lookups of the title are best effort.
// Only a failure to read the cache is returned as an error.
func (m *Manager) IsDownloaded(ctx context.Context, bookID int) (bool, error) {
	book, err := m.cachedBook(bookID)
	if err != nil {
		return false, err
	}

	if book != nil && book.HasLocalFile() {
		if m.store.Verify(ctx, book.LocalFilePath) {
			return true, nil
		}
		log.Printf("Stored file of book %d is gone (%s), clearing download status", bookID, book.LocalFilePath)
		if err := m.books.UpdateDownloadStatus(bookID, false, ""); err != nil {
			log.Printf("Failed to clear download status of book %d: %v", bookID, err)
		}
		book.IsDownloaded = false
		book.LocalFilePath = ""
	}

	var remote *catalog.BookDTO
	title := ""
	if book != nil {
		title = strings.TrimSpace(book.Title)
	}
	if title == "" {
		remote = m.fetchRemote(ctx, bookID)
		if remote != nil {
			title = strings.TrimSpace(remote.Title)
		}
	}
	if title == "" {
		return false, nil
	}

	name := utils.FallbackBookFileName(title, bookID)
	location, found, err := m.store.Find(ctx, name)
	if err != nil {
		log.Printf("Failed to look up %s for book %d: %v", name, bookID, err)
		return false, nil
	}
	if !found {
		return false, nil
	}

	if err := m.recordDownload(bookID, book, remote, title, location); err != nil {
		log.Printf("Failed to record found file of book %d: %v", bookID, err)
	}
	return true, nil
}

// UpdateDownloadStatus overrides the cached download state of a book.
func (m *Manager) UpdateDownloadStatus(_ context.Context, bookID int, downloaded bool, path string) error {
	return m.books.UpdateDownloadStatus(bookID, downloaded, path)
}

// Discard removes the stored copy of a book, both at its cached location and
// under the fallback filename, and clears the cached download state. A book
// that was never cached or stored is not an error.
func (m *Manager) Discard(ctx context.Context, bookID int) error {
	book, err := m.cachedBook(bookID)
	if err != nil {
		return err
	}

	if book != nil && book.LocalFilePath != "" {
		if err := m.store.Remove(ctx, book.LocalFilePath); err != nil {
			return fmt.Errorf("failed to remove %s: %w", book.LocalFilePath, err)
		}
	}

	title, _ := m.resolveTitle(ctx, bookID)
	name := utils.FallbackBookFileName(title, bookID)
	location, found, err := m.store.Find(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", name, err)
	}
	if found {
		if err := m.store.Remove(ctx, location); err != nil {
			return fmt.Errorf("failed to remove %s: %w", location, err)
		}
	}

	if book == nil {
		return nil
	}
	if err := m.books.UpdateDownloadStatus(bookID, false, ""); err != nil && !errors.Is(err, books.ErrBookNotFound) {
		return err
	}
	log.Printf("Discarded stored copy of book %d", bookID)
	return nil
}

// LocalPath resolves a stored location to a file path for stores that
// address files by URI. Other locations are returned unchanged.
func (m *Manager) LocalPath(ctx context.Context, location string) string {
	opener, ok := m.store.(storage.Opener)
	if !ok {
		return location
	}
	path, err := opener.Open(ctx, location)
	if err != nil {
		return location
	}
	return path
}

// Download stores the EPUB of a book, reporting progress after every chunk.
//
// A book that is already stored produces one complete event and no network
// traffic. Failures remove the partial file, are reported as a final error
// event and returned. When ctx is cancelled the partial file is removed, no
// further events are sent and ctx.Err() is returned.
func (m *Manager) Download(ctx context.Context, bookID int, report ProgressFunc) error {
	if report == nil {
		report = func(Progress) {}
	}

	downloaded, err := m.IsDownloaded(ctx, bookID)
	if err != nil {
		log.Printf("Failed to check download status of book %d: %v", bookID, err)
	}
	if downloaded {
		location := ""
		if book, err := m.cachedBook(bookID); err == nil && book != nil {
			location = book.LocalFilePath
		}
		report(Progress{BookID: bookID, Fraction: 1, Complete: true, AlreadyDownloaded: true, Location: location})
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	report(Progress{BookID: bookID, Loading: true})

	title, remote := m.resolveTitle(ctx, bookID)

	dl, err := m.source.DownloadEPUB(ctx, bookID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return m.fail(bookID, 0, err, report)
	}
	defer dl.Body.Close()

	name := utils.SanitizeFilename(dl.FileName)
	if name == "" {
		name = utils.FallbackBookFileName(title, bookID)
	} else {
		name = utils.EnsureEPUBExtension(name)
	}

	sink, err := m.store.Create(ctx, name, dl.ContentType)
	if err != nil {
		return m.fail(bookID, 0, fmt.Errorf("failed to create output for %s: %w", name, err), report)
	}
	location := sink.Location()

	written, err := m.copy(ctx, bookID, dl, sink, report)
	if err != nil {
		if abortErr := sink.Abort(); abortErr != nil {
			log.Printf("Failed to remove partial file %s of book %d: %v", location, bookID, abortErr)
		}
		if ctx.Err() != nil {
			log.Printf("Download of book %d cancelled after %d bytes", bookID, written)
			return ctx.Err()
		}
		return m.fail(bookID, fraction(written, dl.ContentLength), err, report)
	}

	if err := sink.Commit(); err != nil {
		return m.fail(bookID, fraction(written, dl.ContentLength), err, report)
	}

	book, err := m.cachedBook(bookID)
	if err == nil {
		err = m.recordDownload(bookID, book, remote, title, location)
	}
	if err != nil {
		if rmErr := m.store.Remove(context.Background(), location); rmErr != nil {
			log.Printf("Failed to remove %s of book %d: %v", location, bookID, rmErr)
		}
		return m.fail(bookID, fraction(written, dl.ContentLength), fmt.Errorf("failed to record download: %w", err), report)
	}

	log.Printf("Downloaded book %d to %s (%d bytes)", bookID, location, written)
	report(Progress{BookID: bookID, Fraction: 1, Complete: true, Location: location, BytesWritten: written, TotalBytes: dl.ContentLength})
	return nil
}

// Stream runs Download in the background and delivers its events on a
// channel that is closed when the download ends.
func (m *Manager) Stream(ctx context.Context, bookID int) <-chan Progress {
	events := make(chan Progress, 16)
	go func() {
		defer close(events)
		_ = m.Download(ctx, bookID, func(p Progress) {
			select {
			case events <- p:
			case <-ctx.Done():
			}
		})
	}()
	return events
}

func (m *Manager) copy(ctx context.Context, bookID int, dl *catalog.Download, sink storage.Sink, report ProgressFunc) (int64, error) {
	buf := make([]byte, m.chunkSize)
	var written int64
	location := sink.Location()

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := dl.Body.Read(buf)
		if n > 0 {
			if _, err := sink.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("failed to write %s: %w", location, err)
			}
			written += int64(n)
			report(chunkProgress(bookID, written, dl.ContentLength, location))
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("failed to read download stream: %w", readErr)
		}
	}
}

func (m *Manager) fail(bookID int, partial float64, err error, report ProgressFunc) error {
	log.Printf("Download of book %d failed: %v", bookID, err)
	report(Progress{BookID: bookID, Fraction: partial, Error: err.Error()})
	return err
}

// resolveTitle picks the name used for the fallback filename: cached title,
// then the server's, then book_<id>.
func (m *Manager) resolveTitle(ctx context.Context, bookID int) (string, *catalog.BookDTO) {
	if book, err := m.cachedBook(bookID); err == nil && book != nil {
		if title := strings.TrimSpace(book.Title); title != "" {
			return title, nil
		}
	}
	if remote := m.fetchRemote(ctx, bookID); remote != nil {
		if title := strings.TrimSpace(remote.Title); title != "" {
			return title, remote
		}
		return fmt.Sprintf("book_%d", bookID), remote
	}
	return fmt.Sprintf("book_%d", bookID), nil
}

func (m *Manager) cachedBook(bookID int) (*entities.Book, error) {
	book, err := m.books.GetBookByID(bookID)
	if errors.Is(err, books.ErrBookNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read book %d from cache: %w", bookID, err)
	}
	return book, nil
}

func (m *Manager) fetchRemote(ctx context.Context, bookID int) *catalog.BookDTO {
	remote, err := m.source.GetBook(ctx, bookID)
	if err != nil {
		log.Printf("Could not fetch book %d from catalog: %v", bookID, err)
		return nil
	}
	return remote
}

// recordDownload marks the book as stored at location, creating the cache
// row when the book was never cached: from the server's copy when we have
// one, otherwise a minimal row.
func (m *Manager) recordDownload(bookID int, cached *entities.Book, remote *catalog.BookDTO, title, location string) error {
	if cached != nil {
		return m.books.UpdateDownloadStatus(bookID, true, location)
	}

	var row entities.Book
	if remote != nil {
		row = remote.ToEntity()
	} else {
		row = entities.Book{ID: bookID, Title: title}
	}
	if row.DateAdded == "" {
		row.DateAdded = m.now().Format(entities.TimestampLayout)
	}
	row.IsDownloaded = true
	row.LocalFilePath = location
	return m.books.UpsertBook(&row)
}
