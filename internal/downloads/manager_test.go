package downloads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/booklibrary/internal/catalog"
	"github.com/mrlokans/booklibrary/internal/database"
	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/storage/providers/filesystem"
)

type fakeCatalog struct {
	books         map[int]catalog.BookDTO
	content       string
	declaredSize  string
	fileName      string
	downloadCalls atomic.Int32
	// download overrides the download endpoint when set.
	download http.HandlerFunc
}

func (f *fakeCatalog) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/download") {
			f.downloadCalls.Add(1)
			if f.download != nil {
				f.download(w, r)
				return
			}
			w.Header().Set("Content-Type", catalog.EPUBMimeType)
			if f.fileName != "" {
				w.Header().Set("Content-Disposition", `attachment; filename="`+f.fileName+`"`)
			}
			if f.declaredSize != "" {
				w.Header().Set("Content-Length", f.declaredSize)
			}
			_, _ = w.Write([]byte(f.content))
			return
		}

		id, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/api/books/"))
		if err != nil {
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		book, ok := f.books[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(book)
	}
}

type testEnv struct {
	manager *Manager
	repo    *books.Repository
	store   *filesystem.Store
	catalog *fakeCatalog
}

func setupManager(t *testing.T, fake *fakeCatalog, opts ...Option) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "library.db")+"?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	client, err := catalog.NewClient(server.URL)
	require.NoError(t, err)

	store, err := filesystem.NewStore(filepath.Join(dir, "Download", "BookLibraryApp"))
	require.NoError(t, err)

	repo := books.NewRepository(db)
	return &testEnv{
		manager: NewManager(repo, client, store, opts...),
		repo:    repo,
		store:   store,
		catalog: fake,
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Progress
}

func (r *recorder) report(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *recorder) last() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownload_StreamsWithMonotonicProgress(t *testing.T) {
	env := setupManager(t, &fakeCatalog{
		books:        map[int]catalog.BookDTO{3: {ID: 3, Title: "Dune", DateAdded: "2024-01-01 00:00:00"}},
		content:      strings.Repeat("x", 20),
		declaredSize: "20",
		fileName:     "dune.epub",
	}, WithChunkSize(4))
	rec := &recorder{}

	err := env.manager.Download(context.Background(), 3, rec.report)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(rec.events), 3)
	assert.True(t, rec.events[0].Loading)
	assert.Zero(t, rec.events[0].Fraction)

	prev := 0.0
	for _, e := range rec.events {
		assert.GreaterOrEqual(t, e.Fraction, prev)
		assert.LessOrEqual(t, e.Fraction, 1.0)
		assert.Empty(t, e.Error)
		prev = e.Fraction
	}

	final := rec.last()
	assert.True(t, final.Complete)
	assert.False(t, final.AlreadyDownloaded)
	assert.Equal(t, 1.0, final.Fraction)
	assert.Equal(t, filepath.Join(env.store.Dir(), "dune.epub"), final.Location)

	data, err := os.ReadFile(final.Location)
	require.NoError(t, err)
	assert.Len(t, data, 20)

	book, err := env.repo.GetBookByID(3)
	require.NoError(t, err)
	assert.True(t, book.IsDownloaded)
	assert.Equal(t, final.Location, book.LocalFilePath)
	assert.Equal(t, "Dune", book.Title)
}

func TestDownload_UnknownLengthIsIndeterminate(t *testing.T) {
	env := setupManager(t, &fakeCatalog{
		books: map[int]catalog.BookDTO{5: {ID: 5, Title: "Emma"}},
		download: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", catalog.EPUBMimeType)
			flusher := w.(http.Flusher)
			_, _ = w.Write([]byte("part one "))
			flusher.Flush()
			_, _ = w.Write([]byte("part two"))
		},
	})
	rec := &recorder{}

	require.NoError(t, env.manager.Download(context.Background(), 5, rec.report))

	for _, e := range rec.events[1 : len(rec.events)-1] {
		assert.True(t, e.Indeterminate)
		assert.Zero(t, e.Fraction)
	}
	final := rec.last()
	assert.True(t, final.Complete)
	assert.Equal(t, filepath.Join(env.store.Dir(), "Emma_5.epub"), final.Location)
}

func TestDownload_AlreadyDownloadedSkipsNetwork(t *testing.T) {
	env := setupManager(t, &fakeCatalog{content: "unused"})
	path := filepath.Join(env.store.Dir(), "stored.epub")
	require.NoError(t, os.WriteFile(path, []byte("epub"), 0o644))
	require.NoError(t, env.repo.UpsertBook(&entities.Book{ID: 1, Title: "Stored", IsDownloaded: true, LocalFilePath: path}))
	rec := &recorder{}

	require.NoError(t, env.manager.Download(context.Background(), 1, rec.report))

	require.Len(t, rec.events, 1)
	assert.Equal(t, Progress{BookID: 1, Fraction: 1, Complete: true, AlreadyDownloaded: true, Location: path}, rec.events[0])
	assert.Zero(t, env.catalog.downloadCalls.Load())
}

func TestDownload_FailureMidStreamLeavesNoFile(t *testing.T) {
	env := setupManager(t, &fakeCatalog{
		books:        map[int]catalog.BookDTO{2: {ID: 2, Title: "Broken"}},
		content:      strings.Repeat("y", 10),
		declaredSize: "100",
	}, WithChunkSize(4))
	rec := &recorder{}

	err := env.manager.Download(context.Background(), 2, rec.report)
	require.Error(t, err)

	final := rec.last()
	assert.True(t, final.Failed())
	assert.False(t, final.Complete)
	assert.Less(t, final.Fraction, 1.0)
	assert.Empty(t, storedFiles(t, env.store.Dir()))

	_, err = env.repo.GetBookByID(2)
	assert.ErrorIs(t, err, books.ErrBookNotFound)
}

func TestDownload_ServerErrorIsReported(t *testing.T) {
	env := setupManager(t, &fakeCatalog{
		books: map[int]catalog.BookDTO{4: {ID: 4, Title: "Gone"}},
		download: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	})
	rec := &recorder{}

	err := env.manager.Download(context.Background(), 4, rec.report)

	var statusErr *catalog.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	require.Len(t, rec.events, 2)
	assert.True(t, rec.events[0].Loading)
	assert.NotEmpty(t, rec.events[1].Error)
	assert.Empty(t, storedFiles(t, env.store.Dir()))
}

func TestDownload_CancelledStopsWithoutErrorEvent(t *testing.T) {
	release := make(chan struct{})
	env := setupManager(t, &fakeCatalog{
		books: map[int]catalog.BookDTO{8: {ID: 8, Title: "Long"}},
		download: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "1000")
			_, _ = w.Write([]byte("first chunk"))
			w.(http.Flusher).Flush()
			select {
			case <-release:
			case <-r.Context().Done():
			}
		},
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	report := func(p Progress) {
		rec.report(p)
		if p.BytesWritten > 0 {
			cancel()
		}
	}

	err := env.manager.Download(ctx, 8, report)

	assert.ErrorIs(t, err, context.Canceled)
	for _, e := range rec.events {
		assert.False(t, e.Failed())
		assert.False(t, e.Complete)
	}
	assert.Empty(t, storedFiles(t, env.store.Dir()))
}

func TestDownload_FallbackNameWithoutCachedTitle(t *testing.T) {
	env := setupManager(t, &fakeCatalog{content: "abc", declaredSize: "3"})
	rec := &recorder{}

	require.NoError(t, env.manager.Download(context.Background(), 12, rec.report))

	final := rec.last()
	assert.Equal(t, filepath.Join(env.store.Dir(), "book_12.epub"), final.Location)

	book, err := env.repo.GetBookByID(12)
	require.NoError(t, err)
	assert.Equal(t, "book_12", book.Title)
	assert.NotEmpty(t, book.DateAdded)
	assert.True(t, book.IsDownloaded)
}

func TestIsDownloaded_ClearsStaleCachedPath(t *testing.T) {
	env := setupManager(t, &fakeCatalog{})
	missing := filepath.Join(env.store.Dir(), "missing.epub")
	require.NoError(t, env.repo.UpsertBook(&entities.Book{ID: 7, Title: "Nothing Here", IsDownloaded: true, LocalFilePath: missing}))

	downloaded, err := env.manager.IsDownloaded(context.Background(), 7)

	require.NoError(t, err)
	assert.False(t, downloaded)
	book, err := env.repo.GetBookByID(7)
	require.NoError(t, err)
	assert.False(t, book.IsDownloaded)
	assert.Empty(t, book.LocalFilePath)
}

func TestIsDownloaded_FindsFallbackFile(t *testing.T) {
	env := setupManager(t, &fakeCatalog{})
	require.NoError(t, env.repo.UpsertBook(&entities.Book{ID: 9, Title: "War & Peace"}))
	path := filepath.Join(env.store.Dir(), "War_Peace_9.epub")
	require.NoError(t, os.WriteFile(path, []byte("epub"), 0o644))

	downloaded, err := env.manager.IsDownloaded(context.Background(), 9)

	require.NoError(t, err)
	assert.True(t, downloaded)
	book, err := env.repo.GetBookByID(9)
	require.NoError(t, err)
	assert.True(t, book.IsDownloaded)
	assert.Equal(t, path, book.LocalFilePath)
}

func TestIsDownloaded_UsesRemoteTitleForUncachedBook(t *testing.T) {
	env := setupManager(t, &fakeCatalog{
		books: map[int]catalog.BookDTO{11: {ID: 11, Title: "Remote", DateAdded: "2024-05-05 05:05:05"}},
	})
	path := filepath.Join(env.store.Dir(), "Remote_11.epub")
	require.NoError(t, os.WriteFile(path, []byte("epub"), 0o644))

	downloaded, err := env.manager.IsDownloaded(context.Background(), 11)

	require.NoError(t, err)
	assert.True(t, downloaded)
	book, err := env.repo.GetBookByID(11)
	require.NoError(t, err)
	assert.Equal(t, "Remote", book.Title)
	assert.Equal(t, "2024-05-05 05:05:05", book.DateAdded)
	assert.Equal(t, path, book.LocalFilePath)
}

func TestIsDownloaded_EmptyFileDoesNotCount(t *testing.T) {
	env := setupManager(t, &fakeCatalog{})
	require.NoError(t, env.repo.UpsertBook(&entities.Book{ID: 6, Title: "Empty"}))
	require.NoError(t, os.WriteFile(filepath.Join(env.store.Dir(), "Empty_6.epub"), nil, 0o644))

	downloaded, err := env.manager.IsDownloaded(context.Background(), 6)

	require.NoError(t, err)
	assert.False(t, downloaded)
}

func TestIsDownloaded_UnknownBookIsFalse(t *testing.T) {
	env := setupManager(t, &fakeCatalog{})

	downloaded, err := env.manager.IsDownloaded(context.Background(), 404)

	require.NoError(t, err)
	assert.False(t, downloaded)
}

func TestStream_ClosesAfterFinalEvent(t *testing.T) {
	env := setupManager(t, &fakeCatalog{
		books:        map[int]catalog.BookDTO{3: {ID: 3, Title: "Dune"}},
		content:      "epub",
		declaredSize: "4",
	})

	var events []Progress
	for p := range env.manager.Stream(context.Background(), 3) {
		events = append(events, p)
	}

	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].Finished())
	assert.True(t, events[len(events)-1].Complete)
}

func TestDiscard_RemovesFallbackFileSoDownloadRuns(t *testing.T) {
	env := setupManager(t, &fakeCatalog{content: "fresh", declaredSize: "5"})
	require.NoError(t, env.repo.UpsertBook(&entities.Book{ID: 9, Title: "War & Peace"}))
	path := filepath.Join(env.store.Dir(), "War_Peace_9.epub")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
	ctx := context.Background()

	downloaded, err := env.manager.IsDownloaded(ctx, 9)
	require.NoError(t, err)
	require.True(t, downloaded)

	require.NoError(t, env.manager.Discard(ctx, 9))

	assert.NoFileExists(t, path)
	book, err := env.repo.GetBookByID(9)
	require.NoError(t, err)
	assert.False(t, book.IsDownloaded)
	assert.Empty(t, book.LocalFilePath)

	rec := &recorder{}
	require.NoError(t, env.manager.Download(ctx, 9, rec.report))

	assert.Equal(t, int32(1), env.catalog.downloadCalls.Load())
	assert.False(t, rec.last().AlreadyDownloaded)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(content))
}

func TestDiscard_UncachedBookIsNothingToReset(t *testing.T) {
	env := setupManager(t, &fakeCatalog{})

	assert.NoError(t, env.manager.Discard(context.Background(), 404))
}

func TestDownload_AddsEPUBExtensionToServerName(t *testing.T) {
	env := setupManager(t, &fakeCatalog{content: "abc", declaredSize: "3", fileName: "Dune"})
	rec := &recorder{}

	require.NoError(t, env.manager.Download(context.Background(), 1, rec.report))

	assert.Equal(t, filepath.Join(env.store.Dir(), "Dune.epub"), rec.last().Location)
}

func TestLocalPath_PlainPathUnchanged(t *testing.T) {
	env := setupManager(t, &fakeCatalog{})
	path := filepath.Join(env.store.Dir(), "stored.epub")

	assert.Equal(t, path, env.manager.LocalPath(context.Background(), path))
}
