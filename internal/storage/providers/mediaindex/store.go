// Package mediaindex stores downloaded books behind a media index table.
//
// Every stored file gets a row in media_entries keyed by a UUID and is
// addressed as content://media/downloads/<uuid>. Rows are looked up by
// relative path and display name, so a file is found again after its
// cache row was lost.
package mediaindex

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"

	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/storage"
)

const (
	uriPrefix = storage.ContentURIScheme + "media/downloads/"

	genericMimeType = "application/octet-stream"
)

// Store implements storage.Store on top of a media index table.
type Store struct {
	db           *gorm.DB
	dir          string
	relativePath string
}

// NewStore creates a media index store. Files live in dir; relativePath is the
// collection path recorded in the index, e.g. "Download/BookLibraryApp/".
func NewStore(db *gorm.DB, dir, relativePath string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve media dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	if !strings.HasSuffix(relativePath, "/") {
		relativePath += "/"
	}
	return &Store{db: db, dir: abs, relativePath: relativePath}, nil
}

// RelativePath returns the collection path recorded for new entries.
func (s *Store) RelativePath() string {
	return s.relativePath
}

// URIFor returns the content URI of an entry ID.
func URIFor(id string) string {
	return uriPrefix + id
}

func idFromURI(location string) (string, bool) {
	if !strings.HasPrefix(location, uriPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(location, uriPrefix)
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// Create inserts a pending index row and opens the backing file. The row
// becomes visible to Find only after Commit records a non-zero size.
func (s *Store) Create(ctx context.Context, name, mimeType string) (storage.Sink, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid display name %q", name)
	}
	if err := s.dropStale(ctx, name); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	entry := entities.MediaEntry{
		ID:           id,
		RelativePath: s.relativePath,
		DisplayName:  name,
		MimeType:     mimeType,
		DataPath:     filepath.Join(s.dir, name),
		Pending:      true,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("insert media entry for %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+".*.part")
	if err != nil {
		s.db.Delete(&entities.MediaEntry{}, "id = ?", id)
		return nil, fmt.Errorf("open media file for %s: %w", name, err)
	}

	h, _ := blake2b.New256(nil)
	return &sink{store: s, entry: entry, file: tmp, hash: h}, nil
}

// Find returns the URI of the newest committed, non-empty entry with the
// given display name whose backing file still exists.
func (s *Store) Find(ctx context.Context, name string) (string, bool, error) {
	var candidates []entities.MediaEntry
	err := s.db.WithContext(ctx).
		Where("relative_path = ? AND display_name = ? AND pending = ? AND size > 0", s.relativePath, name, false).
		Order("created_at DESC").
		Find(&candidates).Error
	if err != nil {
		return "", false, fmt.Errorf("query media index for %s: %w", name, err)
	}
	for _, entry := range candidates {
		if storage.VerifyPath(entry.DataPath) {
			return URIFor(entry.ID), true, nil
		}
	}
	return "", false, nil
}

// Verify accepts both content URIs and plain paths, since caches written by
// the filesystem store may still hold paths.
func (s *Store) Verify(ctx context.Context, location string) bool {
	id, ok := idFromURI(location)
	if !ok {
		if storage.IsContentURI(location) {
			return false
		}
		return storage.VerifyPath(location)
	}

	entry, err := s.get(ctx, id)
	if err != nil || entry.Pending || entry.Size <= 0 {
		return false
	}
	return storage.VerifyPath(entry.DataPath)
}

// Remove deletes the index row and its file. Plain paths are removed directly.
func (s *Store) Remove(ctx context.Context, location string) error {
	id, ok := idFromURI(location)
	if !ok {
		if storage.IsContentURI(location) {
			return nil
		}
		return storage.RemovePath(location)
	}

	entry, err := s.get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.removeEntry(ctx, entry)
}

// Open returns the backing file path of a URI, for readers that need a path.
func (s *Store) Open(ctx context.Context, location string) (string, error) {
	id, ok := idFromURI(location)
	if !ok {
		return "", storage.ErrNotFound
	}
	entry, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}
	return entry.DataPath, nil
}

func (s *Store) List(ctx context.Context) ([]storage.FileInfo, error) {
	var entries []entities.MediaEntry
	err := s.db.WithContext(ctx).
		Where("relative_path = ? AND pending = ?", s.relativePath, false).
		Order("display_name ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list media index: %w", err)
	}

	files := make([]storage.FileInfo, 0, len(entries))
	for _, e := range entries {
		files = append(files, storage.FileInfo{
			Name:       e.DisplayName,
			Location:   URIFor(e.ID),
			Size:       e.Size,
			MimeType:   e.MimeType,
			ModifiedAt: e.UpdatedAt,
		})
	}
	return files, nil
}

func (s *Store) get(ctx context.Context, id string) (*entities.MediaEntry, error) {
	var entry entities.MediaEntry
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// dropStale removes entries for name that can no longer be served, so a new
// file can take the name.
func (s *Store) dropStale(ctx context.Context, name string) error {
	var existing []entities.MediaEntry
	err := s.db.WithContext(ctx).
		Where("relative_path = ? AND display_name = ?", s.relativePath, name).
		Find(&existing).Error
	if err != nil {
		return fmt.Errorf("query media index for %s: %w", name, err)
	}
	for i := range existing {
		entry := &existing[i]
		if !entry.Pending && entry.Size > 0 && storage.VerifyPath(entry.DataPath) {
			continue
		}
		if err := s.removeEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) removeEntry(ctx context.Context, entry *entities.MediaEntry) error {
	if err := s.db.WithContext(ctx).Delete(&entities.MediaEntry{}, "id = ?", entry.ID).Error; err != nil {
		return fmt.Errorf("delete media entry %s: %w", entry.ID, err)
	}
	if entry.Pending {
		return nil
	}
	var others int64
	s.db.WithContext(ctx).Model(&entities.MediaEntry{}).Where("data_path = ? AND pending = ?", entry.DataPath, false).Count(&others)
	if others > 0 {
		return nil
	}
	return storage.RemovePath(entry.DataPath)
}

type sink struct {
	store *Store
	entry entities.MediaEntry
	file  *os.File
	hash  hash.Hash
	size  int64
	done  bool
}

func (s *sink) Write(p []byte) (int, error) {
	n, err := s.file.Write(p)
	s.hash.Write(p[:n])
	s.size += int64(n)
	return n, err
}

func (s *sink) Location() string {
	return URIFor(s.entry.ID)
}

// Commit moves the file into place and publishes the entry with its final
// size, checksum and sniffed MIME type.
func (s *sink) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	tmpPath := s.file.Name()

	fail := func(err error) error {
		s.file.Close()
		os.Remove(tmpPath)
		s.store.db.Delete(&entities.MediaEntry{}, "id = ?", s.entry.ID)
		return err
	}

	if err := s.file.Sync(); err != nil {
		return fail(fmt.Errorf("flush %s: %w", s.entry.DisplayName, err))
	}
	if err := s.file.Close(); err != nil {
		return fail(fmt.Errorf("close %s: %w", s.entry.DisplayName, err))
	}

	mimeType := s.entry.MimeType
	if mimeType == "" || mimeType == genericMimeType {
		if detected, err := mimetype.DetectFile(tmpPath); err == nil {
			mimeType = detected.String()
		}
	}

	if err := os.Rename(tmpPath, s.entry.DataPath); err != nil {
		return fail(fmt.Errorf("move %s into place: %w", s.entry.DisplayName, err))
	}

	err := s.store.db.Model(&entities.MediaEntry{}).
		Where("id = ?", s.entry.ID).
		Updates(map[string]any{
			"pending":   false,
			"size":      s.size,
			"mime_type": mimeType,
			"checksum":  hex.EncodeToString(s.hash.Sum(nil)),
		}).Error
	if err != nil {
		os.Remove(s.entry.DataPath)
		s.store.db.Delete(&entities.MediaEntry{}, "id = ?", s.entry.ID)
		return fmt.Errorf("publish media entry for %s: %w", s.entry.DisplayName, err)
	}
	return nil
}

// Abort deletes the pending entry and the partial file.
func (s *sink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	s.file.Close()
	fileErr := storage.RemovePath(s.file.Name())
	if err := s.store.db.Delete(&entities.MediaEntry{}, "id = ?", s.entry.ID).Error; err != nil {
		return fmt.Errorf("delete pending media entry %s: %w", s.entry.ID, err)
	}
	return fileErr
}
