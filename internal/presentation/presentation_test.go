package presentation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/downloads"
	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/library"
	"github.com/mrlokans/booklibrary/internal/reconcile"
)

type fakeLibrary struct {
	mu         sync.Mutex
	books      map[int]*library.Book
	genres     []entities.Genre
	valid      map[int]bool
	refreshErr error
	genresErr  error

	filters       []books.Filter
	downloadCalls int
	cleared       []int
	// download replaces the default successful download when set.
	download func(ctx context.Context, id int, report downloads.ProgressFunc) error
}

func newFakeLibrary(list ...entities.Book) *fakeLibrary {
	f := &fakeLibrary{books: map[int]*library.Book{}, valid: map[int]bool{}}
	for _, b := range list {
		f.books[b.ID] = &library.Book{Book: b, Genres: []string{}}
	}
	return f
}

func (f *fakeLibrary) GetBooks(_ context.Context, filter books.Filter) ([]library.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	var list []library.Book
	for _, b := range f.books {
		if filter.Query != "" && !strings.Contains(b.Title, filter.Query) {
			continue
		}
		list = append(list, *b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (f *fakeLibrary) GetBook(_ context.Context, id int) (*library.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[id]
	if !ok {
		return nil, library.ErrBookNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeLibrary) GetGenres(context.Context) ([]entities.Genre, error) {
	return f.genres, nil
}

func (f *fakeLibrary) RefreshBooks(context.Context, books.Filter) reconcile.Result {
	return reconcile.Result{Err: f.refreshErr}
}

func (f *fakeLibrary) RefreshGenres(context.Context) error {
	return f.genresErr
}

func (f *fakeLibrary) ToggleBookmark(_ context.Context, bookID int) (*entities.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.books[bookID]
	if b.Bookmark != nil {
		b.Bookmark = nil
		return nil, nil
	}
	b.Bookmark = &entities.Bookmark{BookID: bookID, Status: entities.BookmarkStatusReading}
	return b.Bookmark, nil
}

func (f *fakeLibrary) IsBookDownloaded(_ context.Context, bookID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid[bookID], nil
}

func (f *fakeLibrary) UpdateBookDownloadStatus(_ context.Context, bookID int, downloaded bool, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, bookID)
	f.books[bookID].IsDownloaded = downloaded
	f.books[bookID].LocalFilePath = path
	return nil
}

func (f *fakeLibrary) DownloadBook(ctx context.Context, bookID int, report downloads.ProgressFunc) error {
	f.mu.Lock()
	f.downloadCalls++
	download := f.download
	f.mu.Unlock()

	if download != nil {
		return download(ctx, bookID, report)
	}
	report(downloads.Progress{BookID: bookID, Loading: true})
	report(downloads.Progress{BookID: bookID, Fraction: 0.5, Loading: true})

	f.mu.Lock()
	f.books[bookID].IsDownloaded = true
	f.books[bookID].LocalFilePath = "/books/" + f.books[bookID].Title + ".epub"
	f.valid[bookID] = true
	f.mu.Unlock()

	report(downloads.Progress{BookID: bookID, Fraction: 1, Complete: true})
	return nil
}

func (f *fakeLibrary) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadCalls
}

func failingDownload(msg string) func(context.Context, int, downloads.ProgressFunc) error {
	return func(_ context.Context, id int, report downloads.ProgressFunc) error {
		report(downloads.Progress{BookID: id, Loading: true})
		report(downloads.Progress{BookID: id, Fraction: 0.3, Error: msg})
		return errors.New(msg)
	}
}

func startedCatalog(t *testing.T, lib *fakeLibrary) *CatalogState {
	t.Helper()
	state := NewCatalogState(lib)
	t.Cleanup(state.Close)
	state.Start(context.Background())
	return state
}

func TestCatalogState_StartLoadsBooksAndGenres(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"}, entities.Book{ID: 2, Title: "Emma"})
	lib.genres = []entities.Genre{{Name: "Fantasy", Count: 1}}

	state := startedCatalog(t, lib)
	snap := state.Snapshot()

	assert.False(t, snap.Refreshing)
	assert.Len(t, snap.Books, 2)
	assert.Equal(t, lib.genres, snap.Genres)
	assert.False(t, snap.ShowLoadFromAPI)
	assert.Empty(t, snap.Error)
	assert.Equal(t, DefaultKey(), snap.Key)
}

func TestCatalogState_ShowLoadFromAPI(t *testing.T) {
	state := startedCatalog(t, newFakeLibrary())
	assert.True(t, state.Snapshot().ShowLoadFromAPI)

	state.SetQuery(context.Background(), "nothing")
	assert.False(t, state.Snapshot().ShowLoadFromAPI, "an active search hides the button")
}

func TestCatalogState_KeyChangeRequeries(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"}, entities.Book{ID: 2, Title: "Emma"})
	state := startedCatalog(t, lib)
	ctx := context.Background()

	state.SetQuery(ctx, "  Dune ")
	state.SetGenre(ctx, "Fantasy")
	state.SetSort(ctx, "title", "asc")

	snap := state.Snapshot()
	require.Len(t, snap.Books, 1)
	assert.Equal(t, 1, snap.Books[0].ID)
	assert.Equal(t, Key{Query: "Dune", Genre: "Fantasy", Sort: "title", Order: "asc"}, snap.Key)
	assert.Equal(t, books.Filter{Query: "Dune", Genre: "Fantasy", Sort: "title", Order: "asc"}, lib.filters[len(lib.filters)-1])

	state.SetSort(ctx, "rating", "sideways")
	assert.Equal(t, Key{Query: "Dune", Genre: "Fantasy", Sort: "date_added", Order: "desc"}, state.Key())
}

func TestCatalogState_RefreshAggregatesErrors(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"})
	state := startedCatalog(t, lib)
	lib.genresErr = errors.New("genres down")
	lib.refreshErr = errors.New("books down")

	state.Refresh(context.Background())

	snap := state.Snapshot()
	assert.Equal(t, "Failed to refresh genres: genres down\nFailed to refresh books: books down", snap.Error)
	assert.False(t, snap.Refreshing)

	state.ClearError()
	assert.Empty(t, state.Snapshot().Error)
}

func TestCatalogState_KeyChangeClearsErrors(t *testing.T) {
	lib := newFakeLibrary()
	lib.genresErr = errors.New("down")
	state := startedCatalog(t, lib)
	require.NotEmpty(t, state.Snapshot().Error)

	state.SetQuery(context.Background(), "x")

	assert.Empty(t, state.Snapshot().Error)
}

func TestCatalogState_DownloadsBookNotStored(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"})
	state := startedCatalog(t, lib)

	state.HandleBookAction(context.Background(), 1)
	state.Wait()

	snap := state.Snapshot()
	assert.Equal(t, 1, lib.calls())
	assert.True(t, snap.DownloadProgress[1].Complete)
	assert.True(t, snap.Books[0].IsDownloaded, "list is reloaded after a download")
	assert.Empty(t, snap.Error)
}

func TestCatalogState_RetriesFailedDownload(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"})
	lib.download = failingDownload("boom")
	state := startedCatalog(t, lib)
	ctx := context.Background()

	state.HandleBookAction(ctx, 1)
	state.Wait()

	snap := state.Snapshot()
	assert.Equal(t, "Download of Dune failed: boom", snap.Error)
	assert.True(t, snap.DownloadProgress[1].Failed())
	assert.Equal(t, 0.3, snap.DownloadProgress[1].Fraction)

	lib.mu.Lock()
	lib.download = nil
	lib.mu.Unlock()

	state.HandleBookAction(ctx, 1)
	state.Wait()

	snap = state.Snapshot()
	assert.Equal(t, 2, lib.calls())
	assert.Equal(t, "Retrying download of Dune...", snap.Error)
	assert.True(t, snap.DownloadProgress[1].Complete)
}

func TestCatalogState_OpensValidFile(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune", IsDownloaded: true, LocalFilePath: "/books/dune.epub"})
	lib.valid[1] = true
	state := startedCatalog(t, lib)

	state.HandleBookAction(context.Background(), 1)

	select {
	case path := <-state.OpenFileEvents():
		assert.Equal(t, "/books/dune.epub", path)
	case <-time.After(time.Second):
		t.Fatal("expected an open-file event")
	}
	assert.Zero(t, lib.calls())
	assert.Empty(t, state.Snapshot().DownloadProgress)
}

func TestCatalogState_RedownloadsMissingFile(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune", IsDownloaded: true, LocalFilePath: "/missing.epub"})
	state := startedCatalog(t, lib)

	state.HandleBookAction(context.Background(), 1)
	state.Wait()

	snap := state.Snapshot()
	assert.Equal(t, []int{1}, lib.cleared)
	assert.Equal(t, 1, lib.calls())
	assert.Equal(t, "File for Dune not found. Downloading again...", snap.Error)
	assert.Empty(t, state.OpenFileEvents())
}

func TestCatalogState_IgnoresActionWhileDownloading(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"})
	release := make(chan struct{})
	lib.download = func(_ context.Context, id int, report downloads.ProgressFunc) error {
		<-release
		report(downloads.Progress{BookID: id, Fraction: 1, Complete: true})
		return nil
	}
	state := startedCatalog(t, lib)
	ctx := context.Background()

	state.HandleBookAction(ctx, 1)
	state.HandleBookAction(ctx, 1)
	assert.True(t, state.Snapshot().DownloadProgress[1].Loading)
	close(release)
	state.Wait()

	assert.Equal(t, 1, lib.calls())
}

func TestCatalogState_CloseCancelsDownloads(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"})
	started := make(chan struct{})
	lib.download = func(ctx context.Context, id int, report downloads.ProgressFunc) error {
		report(downloads.Progress{BookID: id, Loading: true})
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	state := NewCatalogState(lib)
	state.Start(context.Background())

	state.HandleBookAction(context.Background(), 1)
	<-started
	state.Close()

	assert.Empty(t, state.Snapshot().DownloadProgress)
	assert.Empty(t, state.Snapshot().Error)
}

func TestCatalogState_ToggleBookmark(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"})
	state := startedCatalog(t, lib)

	state.ToggleBookmark(context.Background(), 1)
	require.NotNil(t, state.Snapshot().Books[0].Bookmark)

	state.ToggleBookmark(context.Background(), 1)
	assert.Nil(t, state.Snapshot().Books[0].Bookmark)
}

func TestCatalogState_SubscribeReplaysLatest(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"})
	state := startedCatalog(t, lib)

	updates, unsubscribe := state.Subscribe()
	first := <-updates
	assert.Len(t, first.Books, 1)

	// Several changes without reading: only the newest is kept.
	state.SetQuery(context.Background(), "nothing")
	state.SetQuery(context.Background(), "Dune")
	latest := <-updates
	assert.Equal(t, "Dune", latest.Key.Query)
	assert.Len(t, latest.Books, 1)

	unsubscribe()
	_, open := <-updates
	assert.False(t, open)
	unsubscribe()
}

func TestDetailsState_LoadAndDownload(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"})
	state := NewDetailsState(lib)
	t.Cleanup(state.Close)
	ctx := context.Background()

	state.Load(ctx, 1)
	snap := state.Snapshot()
	require.NotNil(t, snap.Book)
	assert.False(t, snap.Loading)
	assert.False(t, snap.Book.IsDownloaded)

	state.HandleOpen(ctx)
	state.Wait()

	snap = state.Snapshot()
	require.NotNil(t, snap.Progress)
	assert.True(t, snap.Progress.Complete)
	assert.True(t, snap.Book.IsDownloaded, "book is reloaded after the download")

	state.HandleOpen(ctx)
	select {
	case path := <-state.OpenFileEvents():
		assert.Equal(t, "/books/Dune.epub", path)
	case <-time.After(time.Second):
		t.Fatal("expected an open-file event")
	}
}

func TestDetailsState_FailedDownload(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"})
	lib.download = failingDownload("disk full")
	state := NewDetailsState(lib)
	t.Cleanup(state.Close)
	ctx := context.Background()

	state.Load(ctx, 1)
	state.HandleOpen(ctx)
	state.Wait()

	snap := state.Snapshot()
	assert.Equal(t, "Download failed: disk full", snap.Error)
	require.NotNil(t, snap.Progress)
	assert.True(t, snap.Progress.Failed())

	state.ClearError()
	snap = state.Snapshot()
	assert.Empty(t, snap.Error)
	assert.False(t, snap.Progress.Failed())
}

func TestDetailsState_UnknownBook(t *testing.T) {
	state := NewDetailsState(newFakeLibrary())
	t.Cleanup(state.Close)

	state.Load(context.Background(), 9)
	state.HandleOpen(context.Background())

	snap := state.Snapshot()
	assert.Nil(t, snap.Book)
	assert.Equal(t, library.ErrBookNotFound.Error(), snap.Error)
}

func TestErrorLog(t *testing.T) {
	var l errorLog
	l.add("general")
	l.addForBook(1, "book one failed")
	l.addForBook(2, "book two failed")
	l.add("  ")

	assert.Equal(t, "general\nbook one failed\nbook two failed", l.String())

	l.removeBook(1)
	assert.Equal(t, "general\nbook two failed", l.String())

	l.clear()
	assert.Empty(t, l.String())
}

func TestCatalogState_UnsubscribeAfterClose(t *testing.T) {
	state := NewCatalogState(newFakeLibrary(entities.Book{ID: 1, Title: "Dune"}))
	updates, unsubscribe := state.Subscribe()

	state.Close()

	_, open := <-updates
	assert.False(t, open)
	assert.NotPanics(t, unsubscribe)
}

func TestDetailsState_UnsubscribeAfterClose(t *testing.T) {
	state := NewDetailsState(newFakeLibrary())
	_, unsubscribe := state.Subscribe()

	state.Close()

	assert.NotPanics(t, unsubscribe)
}

func TestCatalogState_NoDownloadAfterClose(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"})
	state := startedCatalog(t, lib)
	state.Close()

	state.HandleBookAction(context.Background(), 1)
	state.Wait()

	assert.Zero(t, lib.calls())
	assert.Empty(t, state.Snapshot().DownloadProgress)
}

func TestDetailsState_NoDownloadAfterClose(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"})
	state := NewDetailsState(lib)
	ctx := context.Background()
	state.Load(ctx, 1)
	state.Close()

	state.HandleOpen(ctx)
	state.Wait()

	assert.Zero(t, lib.calls())
	assert.Nil(t, state.Snapshot().Progress)
}

func TestDetailsState_SwitchingBooksDuringDownload(t *testing.T) {
	lib := newFakeLibrary(entities.Book{ID: 1, Title: "Dune"}, entities.Book{ID: 2, Title: "Emma"})
	release := make(chan struct{})
	started := make(chan int, 2)
	lib.download = func(_ context.Context, id int, report downloads.ProgressFunc) error {
		report(downloads.Progress{BookID: id, Fraction: 0.1, Loading: true})
		started <- id
		<-release
		report(downloads.Progress{BookID: id, Fraction: 1, Complete: true})
		return nil
	}
	state := NewDetailsState(lib)
	t.Cleanup(state.Close)
	ctx := context.Background()

	state.Load(ctx, 1)
	state.HandleOpen(ctx)
	assert.Equal(t, 1, <-started)
	state.Load(ctx, 2)

	snap := state.Snapshot()
	require.NotNil(t, snap.Book)
	assert.Equal(t, 2, snap.Book.ID)
	assert.Nil(t, snap.Progress, "progress of book 1 is not shown with book 2")

	// The shown book can be downloaded while book 1 is still running.
	state.HandleOpen(ctx)
	assert.Equal(t, 2, <-started)
	assert.Equal(t, 2, lib.calls())

	close(release)
	state.Wait()

	snap = state.Snapshot()
	require.NotNil(t, snap.Book)
	assert.Equal(t, 2, snap.Book.ID)
	require.NotNil(t, snap.Progress)
	assert.Equal(t, 2, snap.Progress.BookID)
	assert.True(t, snap.Progress.Complete)
}
