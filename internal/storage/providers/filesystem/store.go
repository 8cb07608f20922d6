package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mrlokans/booklibrary/internal/storage"
)

const partialSuffix = ".part"

// Store implements storage.Store with plain files in a single directory.
// Locations are absolute file paths.
type Store struct {
	dir string
}

// NewStore creates a filesystem store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve download dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the directory files are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// Create writes into a temporary file next to the target and renames it on
// commit, so Find never sees a partial file.
func (s *Store) Create(_ context.Context, name, _ string) (storage.Sink, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, "."+name+".*"+partialSuffix)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return &sink{file: tmp, target: target}, nil
}

func (s *Store) Find(_ context.Context, name string) (string, bool, error) {
	if err := validateName(name); err != nil {
		return "", false, err
	}
	path := filepath.Join(s.dir, name)
	if storage.VerifyPath(path) {
		return path, true, nil
	}
	return "", false, nil
}

func (s *Store) Verify(_ context.Context, location string) bool {
	return storage.VerifyPath(location)
}

func (s *Store) Remove(_ context.Context, location string) error {
	return storage.RemovePath(location)
}

func (s *Store) List(_ context.Context) ([]storage.FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read download dir: %w", err)
	}

	var files []storage.FileInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), partialSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, storage.FileInfo{
			Name:       entry.Name(),
			Location:   filepath.Join(s.dir, entry.Name()),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func validateName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}

type sink struct {
	file   *os.File
	target string
	done   bool
}

func (s *sink) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

func (s *sink) Location() string {
	return s.target
}

func (s *sink) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	tmpPath := s.file.Name()

	if err := s.file.Sync(); err != nil {
		s.file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flush %s: %w", s.target, err)
	}
	if err := s.file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", s.target, err)
	}
	if err := os.Rename(tmpPath, s.target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("move %s into place: %w", s.target, err)
	}
	return nil
}

func (s *sink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	s.file.Close()
	return storage.RemovePath(s.file.Name())
}
