package presentation

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mrlokans/booklibrary/internal/downloads"
	"github.com/mrlokans/booklibrary/internal/library"
)

// DetailsSnapshot is the observable state of a book details screen.
type DetailsSnapshot struct {
	Loading  bool                `json:"is_loading"`
	Book     *library.Book       `json:"book,omitempty"`
	Error    string              `json:"error,omitempty"`
	Progress *downloads.Progress `json:"download_progress,omitempty"`
}

// DetailsState is the state holder of one book details screen. Downloads
// are tracked per book, so a download keeps running when another book is
// shown, and its progress is only displayed with its own book.
type DetailsState struct {
	lib Library

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	shownID  int
	loading  bool
	book     *library.Book
	err      string
	progress map[int]downloads.Progress
	active   map[int]context.CancelFunc

	snapshots broadcaster[DetailsSnapshot]
	openFile  *events
}

func NewDetailsState(lib Library) *DetailsState {
	ctx, cancel := context.WithCancel(context.Background())
	s := &DetailsState{
		lib:      lib,
		ctx:      ctx,
		cancel:   cancel,
		progress: make(map[int]downloads.Progress),
		active:   make(map[int]context.CancelFunc),
		openFile: newEvents(4),
	}
	s.publishLocked()
	return s
}

func (s *DetailsState) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.snapshots.closeAll()
}

// Wait blocks until running downloads have ended.
func (s *DetailsState) Wait() {
	s.wg.Wait()
}

func (s *DetailsState) Subscribe() (<-chan DetailsSnapshot, func()) {
	return s.snapshots.subscribe()
}

func (s *DetailsState) OpenFileEvents() <-chan string {
	return s.openFile.ch
}

func (s *DetailsState) Snapshot() DetailsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Load shows the given book, fetching it from the catalog when it is not cached.
func (s *DetailsState) Load(ctx context.Context, bookID int) {
	s.mu.Lock()
	s.shownID = bookID
	s.loading = true
	s.err = ""
	s.book = nil
	if _, running := s.active[bookID]; !running {
		delete(s.progress, bookID)
	}
	s.publishLocked()
	s.mu.Unlock()

	s.fetch(ctx, bookID)
}

// fetch reloads the book. The result is dropped when another book has been
// shown in the meantime.
func (s *DetailsState) fetch(ctx context.Context, bookID int) {
	book, err := s.lib.GetBook(ctx, bookID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shownID != bookID {
		return
	}
	s.loading = false
	if err != nil {
		s.err = err.Error()
	} else {
		s.book = book
	}
	s.publishLocked()
}

// HandleOpen is the open-or-download action of the shown book, with the
// same rules as CatalogState.HandleBookAction.
func (s *DetailsState) HandleOpen(ctx context.Context) {
	s.mu.Lock()
	if s.book == nil {
		s.mu.Unlock()
		return
	}
	book := s.book.Book
	if _, running := s.active[book.ID]; running {
		s.mu.Unlock()
		return
	}
	prev, hasProgress := s.progress[book.ID]
	failed := hasProgress && prev.Failed()
	if failed {
		delete(s.progress, book.ID)
		s.err = "Retrying download..."
		s.publishLocked()
	}
	s.mu.Unlock()

	if failed {
		s.startDownload(book.ID)
		return
	}

	if book.HasLocalFile() {
		valid, err := s.lib.IsBookDownloaded(ctx, book.ID)
		if err != nil {
			log.Printf("Failed to verify book %d: %v", book.ID, err)
		}
		if valid {
			location := book.LocalFilePath
			if fresh, err := s.lib.GetBook(ctx, book.ID); err == nil && fresh.LocalFilePath != "" {
				location = fresh.LocalFilePath
			}
			s.openFile.emit(location)
			return
		}
		if err := s.lib.UpdateBookDownloadStatus(ctx, book.ID, false, ""); err != nil {
			log.Printf("Failed to clear download status of book %d: %v", book.ID, err)
		}
		s.setError(book.ID, "File not found. Downloading again...")
		s.fetch(ctx, book.ID)
	} else {
		s.setError(book.ID, "")
	}
	s.startDownload(book.ID)
}

// ToggleBookmark removes the bookmark of the shown book or starts reading it.
func (s *DetailsState) ToggleBookmark(ctx context.Context) {
	s.mu.Lock()
	if s.book == nil {
		s.mu.Unlock()
		return
	}
	bookID := s.book.ID
	s.mu.Unlock()

	if _, err := s.lib.ToggleBookmark(ctx, bookID); err != nil {
		s.setError(bookID, fmt.Sprintf("Bookmark error: %v", err))
		return
	}
	s.fetch(ctx, bookID)
}

// ClearError hides the error, including the one of a failed download of the
// shown book.
func (s *DetailsState) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = ""
	if p, ok := s.progress[s.shownID]; ok && p.Failed() {
		p.Error = ""
		s.progress[s.shownID] = p
	}
	s.publishLocked()
}

func (s *DetailsState) startDownload(bookID int) {
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
			s.mu.Lock()
			defer s.mu.Unlock()
			s.progress[bookID] = p
			if p.Failed() && s.shownID == bookID {
				s.err = "Download failed: " + p.Error
			}
			s.publishLocked()
		})

		s.mu.Lock()
		delete(s.active, bookID)
		if err != nil && ctx.Err() != nil {
			delete(s.progress, bookID)
		}
		shown := s.shownID == bookID
		s.publishLocked()
		s.mu.Unlock()

		if shown && s.ctx.Err() == nil {
			s.fetch(s.ctx, bookID)
		}
	}()
}

// setError replaces the error while the given book is shown.
func (s *DetailsState) setError(bookID int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shownID != bookID {
		return
	}
	s.err = msg
	s.publishLocked()
}

func (s *DetailsState) snapshotLocked() DetailsSnapshot {
	snap := DetailsSnapshot{Loading: s.loading, Book: s.book, Error: s.err}
	if p, ok := s.progress[s.shownID]; ok {
		snap.Progress = &p
	}
	return snap
}

func (s *DetailsState) publishLocked() {
	s.snapshots.publish(s.snapshotLocked())
}
