// Package presentation holds observable per-screen state.
//
// A state holder owns its state and is the only writer: user actions and
// download progress events are applied under its mutex and every change is
// published as an immutable snapshot.
package presentation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/downloads"
	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/library"
	"github.com/mrlokans/booklibrary/internal/reconcile"
)

// Library is the set of use cases the state holders drive.
type Library interface {
	GetBooks(ctx context.Context, filter books.Filter) ([]library.Book, error)
	GetBook(ctx context.Context, id int) (*library.Book, error)
	GetGenres(ctx context.Context) ([]entities.Genre, error)
	RefreshBooks(ctx context.Context, filter books.Filter) reconcile.Result
	RefreshGenres(ctx context.Context) error
	ToggleBookmark(ctx context.Context, bookID int) (*entities.Bookmark, error)
	IsBookDownloaded(ctx context.Context, bookID int) (bool, error)
	UpdateBookDownloadStatus(ctx context.Context, bookID int, downloaded bool, path string) error
	DownloadBook(ctx context.Context, bookID int, report downloads.ProgressFunc) error
}

// Key is the search, filter and sort selection of a catalog screen.
type Key struct {
	Query string `json:"query"`
	Genre string `json:"genre"`
	Sort  string `json:"sort"`
	Order string `json:"order"`
}

// DefaultKey lists the whole catalog, newest first.
func DefaultKey() Key {
	return Key{Sort: books.SortDateAdded, Order: books.OrderDesc}
}

func (k Key) normalize() Key {
	k.Query = strings.TrimSpace(k.Query)
	k.Genre = strings.TrimSpace(k.Genre)
	k.Sort = books.NormalizeSort(k.Sort)
	k.Order = books.NormalizeOrder(k.Order)
	return k
}

func (k Key) filter() books.Filter {
	return books.Filter{Query: k.Query, Genre: k.Genre, Sort: k.Sort, Order: k.Order}
}

// Snapshot is the observable state of a catalog screen.
type Snapshot struct {
	Key              Key                        `json:"key"`
	Refreshing       bool                       `json:"is_refreshing"`
	Books            []library.Book             `json:"books"`
	Genres           []entities.Genre           `json:"genres"`
	Error            string                     `json:"error,omitempty"`
	DownloadProgress map[int]downloads.Progress `json:"download_progress"`
	ShowLoadFromAPI  bool                       `json:"show_load_from_api"`
}

// CatalogState is the state holder of one catalog screen.
type CatalogState struct {
	lib Library

	// ctx bounds the downloads started by this holder.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	key        Key
	refreshing bool
	books      []library.Book
	genres     []entities.Genre
	errs       errorLog
	progress   map[int]downloads.Progress
	active     map[int]context.CancelFunc

	snapshots broadcaster[Snapshot]
	openFile  *events
}

// NewCatalogState creates a catalog state holder with the default key. Call
// Start to load it.
func NewCatalogState(lib Library) *CatalogState {
	ctx, cancel := context.WithCancel(context.Background())
	s := &CatalogState{
		lib:        lib,
		ctx:        ctx,
		cancel:     cancel,
		key:        DefaultKey(),
		refreshing: true,
		books:      []library.Book{},
		genres:     []entities.Genre{},
		progress:   make(map[int]downloads.Progress),
		active:     make(map[int]context.CancelFunc),
		openFile:   newEvents(16),
	}
	s.publishLocked()
	return s
}

// Start refreshes the genre list from the catalog and loads the books of the
// current key from the cache.
func (s *CatalogState) Start(ctx context.Context) {
	if err := s.lib.RefreshGenres(ctx); err != nil {
		s.appendError(fmt.Sprintf("Failed to refresh genres: %v", err))
	}
	s.reload(ctx)
}

// Close cancels running downloads, waits for them and closes all
// subscriptions.
func (s *CatalogState) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.snapshots.closeAll()
}

// Wait blocks until all downloads started so far have ended.
func (s *CatalogState) Wait() {
	s.wg.Wait()
}

// Subscribe returns a channel of snapshots, starting with the current one,
// and a function that ends the subscription.
func (s *CatalogState) Subscribe() (<-chan Snapshot, func()) {
	return s.snapshots.subscribe()
}

// OpenFileEvents delivers locations of stored books the user asked to open.
func (s *CatalogState) OpenFileEvents() <-chan string {
	return s.openFile.ch
}

// Snapshot returns the current state.
func (s *CatalogState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *CatalogState) Key() Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

func (s *CatalogState) SetQuery(ctx context.Context, query string) {
	key := s.Key()
	key.Query = query
	s.SetKey(ctx, key)
}

// SetGenre filters by genre; an empty genre removes the filter.
func (s *CatalogState) SetGenre(ctx context.Context, genre string) {
	key := s.Key()
	key.Genre = genre
	s.SetKey(ctx, key)
}

func (s *CatalogState) SetSort(ctx context.Context, sort, order string) {
	key := s.Key()
	key.Sort = sort
	key.Order = order
	s.SetKey(ctx, key)
}

// SetKey changes the selection and re-queries the cache. Errors shown so
// far are cleared.
func (s *CatalogState) SetKey(ctx context.Context, key Key) {
	key = key.normalize()
	s.mu.Lock()
	s.key = key
	s.refreshing = true
	s.errs.clear()
	s.publishLocked()
	s.mu.Unlock()

	s.reload(ctx)
}

// Refresh reconciles genres and then the books of the current key with the
// catalog, and reloads the list.
func (s *CatalogState) Refresh(ctx context.Context) {
	key := s.beginRefresh()

	if err := s.lib.RefreshGenres(ctx); err != nil {
		s.appendError(fmt.Sprintf("Failed to refresh genres: %v", err))
	}
	if res := s.lib.RefreshBooks(ctx, key.filter()); res.Err != nil {
		s.appendError(fmt.Sprintf("Failed to refresh books: %v", res.Err))
	}
	s.reload(ctx)
}

// LoadFromAPI runs a full catalog refresh regardless of the current key.
func (s *CatalogState) LoadFromAPI(ctx context.Context) {
	s.beginRefresh()

	if res := s.lib.RefreshBooks(ctx, books.Filter{}); res.Err != nil {
		s.appendError(fmt.Sprintf("Failed to load books from the catalog: %v", res.Err))
	}
	s.reload(ctx)
}

func (s *CatalogState) beginRefresh() Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshing = true
	s.errs.clear()
	s.publishLocked()
	return s.key
}

// ToggleBookmark removes the bookmark of a book or starts reading it.
func (s *CatalogState) ToggleBookmark(ctx context.Context, bookID int) {
	if _, err := s.lib.ToggleBookmark(ctx, bookID); err != nil {
		s.appendError(fmt.Sprintf("Bookmark error: %v", err))
		return
	}
	s.reload(ctx)
}

func (s *CatalogState) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs.clear()
	s.publishLocked()
}

// HandleBookAction is the open-or-download action of a book.
//
// After a failed download it retries. A book the cache marks as stored is
// re-verified: if the file is still there an open event is emitted,
// otherwise the stale state is cleared and the book downloaded again. Any
// other book is downloaded. A book with a running download is left alone.
func (s *CatalogState) HandleBookAction(ctx context.Context, bookID int) {
	s.mu.Lock()
	if _, running := s.active[bookID]; running {
		s.mu.Unlock()
		return
	}
	prev, hasProgress := s.progress[bookID]
	book := s.findBookLocked(bookID)
	s.mu.Unlock()

	if book == nil {
		loaded, err := s.lib.GetBook(ctx, bookID)
		if err != nil {
			s.appendError(fmt.Sprintf("Failed to load book %d: %v", bookID, err))
			return
		}
		book = &loaded.Book
	}

	if hasProgress && prev.Failed() {
		s.mu.Lock()
		delete(s.progress, bookID)
		s.errs.removeBook(bookID)
		s.errs.add(fmt.Sprintf("Retrying download of %s...", book.Title))
		s.publishLocked()
		s.mu.Unlock()
		s.startDownload(bookID, book.Title)
		return
	}

	if book.HasLocalFile() {
		valid, err := s.lib.IsBookDownloaded(ctx, bookID)
		if err != nil {
			log.Printf("Failed to verify book %d: %v", bookID, err)
		}
		if valid {
			s.openFile.emit(s.currentLocation(ctx, book))
			return
		}
		s.appendError(fmt.Sprintf("File for %s not found. Downloading again...", book.Title))
		if err := s.lib.UpdateBookDownloadStatus(ctx, bookID, false, ""); err != nil {
			log.Printf("Failed to clear download status of book %d: %v", bookID, err)
		}
	}
	s.startDownload(bookID, book.Title)
}

// CancelDownload stops a running download of a book.
func (s *CatalogState) CancelDownload(bookID int) {
	s.mu.Lock()
	cancel, ok := s.active[bookID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// currentLocation re-reads the stored location, which the existence check
// may have updated.
func (s *CatalogState) currentLocation(ctx context.Context, book *entities.Book) string {
	fresh, err := s.lib.GetBook(ctx, book.ID)
	if err == nil && fresh.LocalFilePath != "" {
		return fresh.LocalFilePath
	}
	return book.LocalFilePath
}

func (s *CatalogState) startDownload(bookID int, title string) {
	s.mu.Lock()
	if _, running := s.active[bookID]; running || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.active[bookID] = cancel
	s.progress[bookID] = downloads.Progress{BookID: bookID, Loading: true}
	s.wg.Add(1)
	s.publishLocked()
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()

		err := s.lib.DownloadBook(ctx, bookID, func(p downloads.Progress) {
			s.applyProgress(title, p)
		})

		s.mu.Lock()
		delete(s.active, bookID)
		if err != nil && ctx.Err() != nil {
			delete(s.progress, bookID)
		}
		s.publishLocked()
		s.mu.Unlock()

		if err == nil {
			s.reload(s.ctx)
		}
	}()
}

func (s *CatalogState) applyProgress(title string, p downloads.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[p.BookID] = p
	s.errs.removeBook(p.BookID)
	if p.Failed() {
		s.errs.addForBook(p.BookID, fmt.Sprintf("Download of %s failed: %s", title, p.Error))
	}
	s.publishLocked()
}

// reload re-queries the cache for the current key. A result for a key that
// changed in the meantime is dropped.
func (s *CatalogState) reload(ctx context.Context) {
	key := s.Key()

	list, err := s.lib.GetBooks(ctx, key.filter())
	genres, genresErr := s.lib.GetGenres(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != key {
		return
	}
	s.refreshing = false
	if err != nil {
		s.errs.add(fmt.Sprintf("Failed to load books: %v", err))
	} else {
		s.books = list
	}
	if genresErr != nil {
		log.Printf("Failed to load genres: %v", genresErr)
	} else if genres != nil {
		s.genres = genres
	}
	s.publishLocked()
}

func (s *CatalogState) appendError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs.add(msg)
	s.publishLocked()
}

func (s *CatalogState) findBookLocked(bookID int) *entities.Book {
	for i := range s.books {
		if s.books[i].ID == bookID {
			b := s.books[i].Book
			return &b
		}
	}
	return nil
}

func (s *CatalogState) snapshotLocked() Snapshot {
	progress := make(map[int]downloads.Progress, len(s.progress))
	for id, p := range s.progress {
		progress[id] = p
	}
	return Snapshot{
		Key:              s.key,
		Refreshing:       s.refreshing,
		Books:            s.books,
		Genres:           s.genres,
		Error:            s.errs.String(),
		DownloadProgress: progress,
		ShowLoadFromAPI:  !s.refreshing && len(s.books) == 0 && s.key.Query == "" && s.key.Genre == "",
	}
}

func (s *CatalogState) publishLocked() {
	s.snapshots.publish(s.snapshotLocked())
}
