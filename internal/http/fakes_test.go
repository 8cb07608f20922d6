package http

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/downloads"
	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/library"
	"github.com/mrlokans/booklibrary/internal/reconcile"
	"github.com/mrlokans/booklibrary/internal/sessions"
)

// fakeStore is an in-memory library serving every controller.
type fakeStore struct {
	mu sync.Mutex

	books     map[int]*library.Book
	covers    map[int]string
	bookmarks map[int]entities.Bookmark
	notes     map[int]entities.Note
	positions map[int]entities.ReadingPosition
	states    map[int]entities.ReaderState
	nextNote  int

	refreshCalls  int
	downloadCalls []int
	progress      map[int]float64
	chapterAsked  *int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		books: map[int]*library.Book{
			1: {Book: entities.Book{ID: 1, Title: "Dune"}, Genres: []string{"Sci-Fi"}},
			2: {Book: entities.Book{ID: 2, Title: "Emma"}, Genres: []string{"Classic"}},
		},
		covers:    make(map[int]string),
		bookmarks: make(map[int]entities.Bookmark),
		notes:     make(map[int]entities.Note),
		positions: make(map[int]entities.ReadingPosition),
		states:    make(map[int]entities.ReaderState),
		progress:  make(map[int]float64),
		nextNote:  1,
	}
}

func (f *fakeStore) GetBooks(_ context.Context, filter books.Filter) ([]library.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []library.Book
	for _, id := range []int{1, 2} {
		if b, ok := f.books[id]; ok {
			if filter.Query != "" && b.Title != filter.Query {
				continue
			}
			list = append(list, *b)
		}
	}
	return list, nil
}

func (f *fakeStore) GetBook(_ context.Context, id int) (*library.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[id]
	if !ok {
		return nil, library.ErrBookNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) GetGenres(context.Context) ([]entities.Genre, error) {
	return []entities.Genre{{Name: "Classic", Count: 1}, {Name: "Sci-Fi", Count: 1}}, nil
}

func (f *fakeStore) RefreshBooks(context.Context, books.Filter) reconcile.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return reconcile.Result{Pages: 1, Fetched: 2, Merged: 2, Total: 2}
}

func (f *fakeStore) RefreshGenres(context.Context) error { return nil }

func (f *fakeStore) ToggleBookmark(ctx context.Context, bookID int) (*entities.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bookmarks[bookID]; ok {
		delete(f.bookmarks, bookID)
		return nil, nil
	}
	bm := entities.Bookmark{BookID: bookID, Status: entities.BookmarkStatusReading}
	f.bookmarks[bookID] = bm
	return &bm, nil
}

func (f *fakeStore) IsBookDownloaded(_ context.Context, bookID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[bookID]
	return ok && b.IsDownloaded, nil
}

func (f *fakeStore) UpdateBookDownloadStatus(_ context.Context, bookID int, downloaded bool, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.books[bookID]; ok {
		b.IsDownloaded = downloaded
		b.LocalFilePath = path
	}
	return nil
}

func (f *fakeStore) DownloadBook(_ context.Context, bookID int, report downloads.ProgressFunc) error {
	f.mu.Lock()
	f.downloadCalls = append(f.downloadCalls, bookID)
	location := fmt.Sprintf("/downloads/book_%d.epub", bookID)
	if b, ok := f.books[bookID]; ok {
		b.IsDownloaded = true
		b.LocalFilePath = location
	}
	f.mu.Unlock()

	report(downloads.Progress{BookID: bookID, Fraction: 1, Complete: true, Location: location})
	return nil
}

func (f *fakeStore) CoverPath(_ context.Context, bookID int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[bookID]; !ok {
		return "", library.ErrBookNotFound
	}
	path, ok := f.covers[bookID]
	if !ok {
		return "", library.ErrNoCover
	}
	return path, nil
}

func (f *fakeStore) CreateBookmark(_ context.Context, bookID int, status string, chapter int) (*entities.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bm := entities.Bookmark{BookID: bookID, Status: entities.ParseBookmarkStatus(status), CurrentChapter: chapter}
	f.bookmarks[bookID] = bm
	return &bm, nil
}

func (f *fakeStore) DeleteBookmark(_ context.Context, bookID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bookmarks, bookID)
	return nil
}

func (f *fakeStore) ListBookmarks(_ context.Context, status string) ([]entities.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []entities.Bookmark
	for _, bm := range f.bookmarks {
		if status == "" || string(bm.Status) == status {
			list = append(list, bm)
		}
	}
	return list, nil
}

func (f *fakeStore) ListNotes(_ context.Context, bookID int) ([]entities.Note, error) {
	var list []entities.Note
	for _, n := range f.notes {
		if n.BookID == bookID {
			list = append(list, n)
		}
	}
	return list, nil
}

func (f *fakeStore) ListChapterNotes(_ context.Context, bookID, chapter int) ([]entities.Note, error) {
	f.chapterAsked = &chapter
	var list []entities.Note
	for _, n := range f.notes {
		if n.BookID == bookID && n.Chapter != nil && *n.Chapter == chapter {
			list = append(list, n)
		}
	}
	return list, nil
}

func (f *fakeStore) CreateNote(_ context.Context, bookID int, chapter *int, text string) (*entities.Note, error) {
	if text == "" {
		return nil, library.ErrEmptyNote
	}
	n := entities.Note{ID: f.nextNote, BookID: bookID, Chapter: chapter, Text: text}
	f.notes[n.ID] = n
	f.nextNote++
	return &n, nil
}

func (f *fakeStore) UpdateNote(_ context.Context, id int, text string) (*entities.Note, error) {
	if text == "" {
		return nil, library.ErrEmptyNote
	}
	n, ok := f.notes[id]
	if !ok {
		return nil, library.ErrNoteNotFound
	}
	n.Text = text
	f.notes[id] = n
	return &n, nil
}

func (f *fakeStore) DeleteNote(_ context.Context, id int) error {
	if _, ok := f.notes[id]; !ok {
		return library.ErrNoteNotFound
	}
	delete(f.notes, id)
	return nil
}

func (f *fakeStore) GetReaderState(_ context.Context, bookID int) (entities.ReaderState, error) {
	if s, ok := f.states[bookID]; ok {
		return s, nil
	}
	return entities.DefaultReaderState(bookID), nil
}

func (f *fakeStore) SaveReaderState(_ context.Context, state entities.ReaderState) (entities.ReaderState, error) {
	f.states[state.BookID] = state
	return state, nil
}

func (f *fakeStore) SaveReadingPosition(_ context.Context, position entities.ReadingPosition) (*entities.ReadingPosition, error) {
	f.positions[position.BookID] = position
	return &position, nil
}

func (f *fakeStore) GetReadingPosition(_ context.Context, bookID int) (*entities.ReadingPosition, error) {
	p, ok := f.positions[bookID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeStore) UpdateProgress(_ context.Context, bookID int, progress float64) error {
	f.progress[bookID] = progress
	return nil
}

func (f *fakeStore) ClearReadingPosition(_ context.Context, bookID int) error {
	delete(f.positions, bookID)
	return nil
}

func (f *fakeStore) ListReadingPositions(context.Context) ([]entities.ReadingPosition, error) {
	var list []entities.ReadingPosition
	for _, p := range f.positions {
		list = append(list, p)
	}
	return list, nil
}

// testServer wires every controller against a fakeStore with one shared
// screen, the way the router does with sessions disabled.
type testServer struct {
	store   *fakeStore
	screens *sessions.Screens
	engine  *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := newFakeStore()
	screens := sessions.NewScreens(store, time.Hour)
	t.Cleanup(screens.Close)
	resolver := NewScreenResolver(nil, screens)

	catalog := NewCatalogController(resolver)
	booksController := NewBooksController(store, resolver)
	notes := NewNotesController(store)
	reading := NewReadingController(store)

	r := gin.New()
	r.GET("/api/catalog", catalog.GetSnapshot)
	r.PUT("/api/catalog/query", catalog.SetKey)
	r.POST("/api/catalog/refresh", catalog.Refresh)
	r.POST("/api/catalog/load", catalog.LoadFromAPI)
	r.DELETE("/api/catalog/error", catalog.ClearError)
	r.POST("/api/books/:id/action", catalog.BookAction)
	r.DELETE("/api/books/:id/download", catalog.CancelDownload)
	r.POST("/api/books/:id/bookmark/toggle", catalog.ToggleBookmark)

	r.GET("/api/books/:id", booksController.GetBook)
	r.POST("/api/books/:id/open", booksController.OpenBook)
	r.GET("/api/books/:id/cover", booksController.GetCover)
	r.GET("/api/books/:id/download/status", booksController.GetDownloadStatus)
	r.POST("/api/books/:id/bookmark", booksController.CreateBookmark)
	r.DELETE("/api/books/:id/bookmark", booksController.DeleteBookmark)
	r.GET("/api/bookmarks", booksController.ListBookmarks)
	r.GET("/api/genres", booksController.ListGenres)

	r.GET("/api/books/:id/notes", notes.ListNotes)
	r.POST("/api/books/:id/notes", notes.CreateNote)
	r.PUT("/api/notes/:id", notes.UpdateNote)
	r.DELETE("/api/notes/:id", notes.DeleteNote)

	r.GET("/api/books/:id/position", reading.GetPosition)
	r.PUT("/api/books/:id/position", reading.SavePosition)
	r.DELETE("/api/books/:id/position", reading.ClearPosition)
	r.PATCH("/api/books/:id/progress", reading.UpdateProgress)
	r.GET("/api/positions", reading.ListPositions)
	r.GET("/api/books/:id/reader-state", reading.GetReaderState)
	r.PUT("/api/books/:id/reader-state", reading.SaveReaderState)

	return &testServer{store: store, screens: screens, engine: r}
}

func (s *testServer) screen() *sessions.Screen {
	return s.screens.Get(context.Background(), defaultScreenID)
}

// jpegBytes starts with the JPEG signature so the content type is detected.
var jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")

func writeCover(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1.jpg")
	require.NoError(t, os.WriteFile(path, jpegBytes, 0o644))
	return path
}

// fakeQueue records enqueued tasks.
type fakeQueue struct {
	enqueued []backlite.Task
	status   backlite.TaskStatus
	err      error
}

func (q *fakeQueue) Enqueue(task backlite.Task) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.enqueued = append(q.enqueued, task)
	return "task-1", nil
}

func (q *fakeQueue) Status(context.Context, string) (backlite.TaskStatus, error) {
	return q.status, q.err
}

var errQueueDown = errors.New("queue down")
