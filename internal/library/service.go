// Package library holds the use cases shared by the local API, the CLI and
// the presentation state holders.
package library

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mrlokans/booklibrary/internal/catalog"
	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/downloads"
	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/reconcile"
)

var (
	ErrBookNotFound = books.ErrBookNotFound
	ErrNoteNotFound = errors.New("note not found")
	ErrEmptyNote    = errors.New("note text is empty")
	ErrNoCover      = errors.New("book has no cover")
)

// Book is a cached book joined with its genres and bookmark.
type Book struct {
	entities.Book
	Genres   []string           `json:"genres"`
	Bookmark *entities.Bookmark `json:"bookmark,omitempty"`
}

// Deps are the collaborators of a Service. Covers and Remote may be nil.
type Deps struct {
	Books        BookStore
	Genres       GenreStore
	Bookmarks    BookmarkStore
	Notes        NoteStore
	ReaderStates ReaderStateStore
	Positions    PositionStore
	Remote       Remote
	Reconciler   Reconciler
	Downloads    Downloader
	Covers       CoverCache
}

// Service implements the library use cases.
type Service struct {
	Deps
	now func() time.Time
}

// NewService creates a library service.
func NewService(deps Deps) *Service {
	return &Service{Deps: deps, now: time.Now}
}

func (s *Service) timestamp() string {
	return s.now().Format(entities.TimestampLayout)
}

// GetBooks returns the cached books matching filter, each with its genres
// and bookmark.
func (s *Service) GetBooks(_ context.Context, filter books.Filter) ([]Book, error) {
	rows, err := s.Books.ListBooks(filter)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	ids := make([]int, len(rows))
	for i, b := range rows {
		ids[i] = b.ID
	}
	genresByBook, err := s.Genres.GetGenresForBooks(ids)
	if err != nil {
		return nil, fmt.Errorf("load genres: %w", err)
	}
	bookmarks, err := s.Bookmarks.GetBookmarksForBooks(ids)
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}

	result := make([]Book, len(rows))
	for i, b := range rows {
		result[i] = Book{Book: b, Genres: genresByBook[b.ID]}
		if result[i].Genres == nil {
			result[i].Genres = []string{}
		}
		if bm, ok := bookmarks[b.ID]; ok {
			result[i].Bookmark = &bm
		}
	}
	return result, nil
}

// GetBook returns a book from the cache, fetching it from the catalog on a
// miss. Its download state is re-verified before returning.
func (s *Service) GetBook(ctx context.Context, id int) (*Book, error) {
	row, err := s.Books.GetBookByID(id)
	if errors.Is(err, books.ErrBookNotFound) {
		row, err = s.Reconciler.FetchBook(ctx, id)
		if reconcile.IsNotFound(err) {
			return nil, ErrBookNotFound
		}
	}
	if err != nil {
		return nil, err
	}

	if row.HasLocalFile() {
		downloaded, err := s.Downloads.IsDownloaded(ctx, id)
		if err != nil {
			log.Printf("Failed to verify download of book %d: %v", id, err)
		} else if !downloaded {
			row.IsDownloaded = false
			row.LocalFilePath = ""
		}
	}
	return s.join(row)
}

func (s *Service) join(row *entities.Book) (*Book, error) {
	names, err := s.Genres.GetGenresForBook(row.ID)
	if err != nil {
		return nil, fmt.Errorf("load genres: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	bookmark, err := s.Bookmarks.GetBookmark(row.ID)
	if err != nil {
		return nil, fmt.Errorf("load bookmark: %w", err)
	}
	return &Book{Book: *row, Genres: names, Bookmark: bookmark}, nil
}

// RefreshBooks reconciles the cache with the catalog for filter.
func (s *Service) RefreshBooks(ctx context.Context, filter books.Filter) reconcile.Result {
	return s.Reconciler.Refresh(ctx, filter)
}

// RefreshGenres replaces the cached genres with the catalog's.
func (s *Service) RefreshGenres(ctx context.Context) error {
	return s.Reconciler.RefreshGenres(ctx)
}

// GetGenres returns the cached genres ordered by name.
func (s *Service) GetGenres(_ context.Context) ([]entities.Genre, error) {
	return s.Genres.GetAllGenres()
}

// CreateBookmark sets the bookmark of a book locally and pushes it to the
// catalog. A failed push is logged; the local bookmark stays.
func (s *Service) CreateBookmark(ctx context.Context, bookID int, status string, chapter int) (*entities.Bookmark, error) {
	if chapter < 0 {
		chapter = 0
	}
	bookmark := &entities.Bookmark{
		BookID:         bookID,
		Status:         entities.ParseBookmarkStatus(status),
		CurrentChapter: chapter,
		LastUpdated:    s.timestamp(),
	}
	if err := s.Bookmarks.UpsertBookmark(bookmark); err != nil {
		return nil, fmt.Errorf("save bookmark: %w", err)
	}

	if s.Remote != nil {
		err := s.Remote.CreateBookmark(ctx, catalog.CreateBookmarkRequest{
			BookID:         bookID,
			Status:         string(bookmark.Status),
			CurrentChapter: chapter,
		})
		if err != nil {
			log.Printf("Failed to push bookmark of book %d: %v", bookID, err)
		}
	}
	return bookmark, nil
}

// DeleteBookmark removes the bookmark of a book locally and on the catalog.
func (s *Service) DeleteBookmark(ctx context.Context, bookID int) error {
	if err := s.Bookmarks.DeleteBookmark(bookID); err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	if s.Remote != nil {
		if err := s.Remote.DeleteBookmark(ctx, bookID); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			log.Printf("Failed to delete remote bookmark of book %d: %v", bookID, err)
		}
	}
	return nil
}

// ToggleBookmark removes an existing bookmark or creates a reading one.
func (s *Service) ToggleBookmark(ctx context.Context, bookID int) (*entities.Bookmark, error) {
	existing, err := s.Bookmarks.GetBookmark(bookID)
	if err != nil {
		return nil, fmt.Errorf("load bookmark: %w", err)
	}
	if existing != nil {
		return nil, s.DeleteBookmark(ctx, bookID)
	}
	return s.CreateBookmark(ctx, bookID, string(entities.BookmarkStatusReading), 0)
}

// ListBookmarks returns all bookmarks, or those with status when it is set.
func (s *Service) ListBookmarks(_ context.Context, status string) ([]entities.Bookmark, error) {
	if strings.TrimSpace(status) == "" {
		return s.Bookmarks.ListBookmarks()
	}
	return s.Bookmarks.ListBookmarksByStatus(entities.ParseBookmarkStatus(status))
}

// ListNotes refreshes the cached notes of a book from the catalog and returns
// them. When the catalog is unreachable the cached notes are returned.
func (s *Service) ListNotes(ctx context.Context, bookID int) ([]entities.Note, error) {
	if s.Remote != nil {
		dtos, err := s.Remote.ListNotes(ctx, catalog.NoteFilter{BookID: bookID})
		if err != nil {
			log.Printf("Failed to fetch notes of book %d, using cache: %v", bookID, err)
		} else {
			notes := make([]entities.Note, len(dtos))
			for i, dto := range dtos {
				notes[i] = dto.ToEntity()
			}
			if err := s.Notes.ReplaceForBook(bookID, notes); err != nil {
				return nil, fmt.Errorf("cache notes: %w", err)
			}
		}
	}
	return s.Notes.ListForBook(bookID)
}

// ListChapterNotes returns the cached notes of one chapter.
func (s *Service) ListChapterNotes(_ context.Context, bookID, chapter int) ([]entities.Note, error) {
	return s.Notes.ListForChapter(bookID, chapter)
}

// CreateNote stores a note on the catalog and caches the server's copy.
// Without a catalog the note is only kept locally.
func (s *Service) CreateNote(ctx context.Context, bookID int, chapter *int, text string) (*entities.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyNote
	}

	var note entities.Note
	if s.Remote != nil {
		dto, err := s.Remote.CreateNote(ctx, catalog.CreateNoteRequest{BookID: bookID, Chapter: chapter, Text: text})
		if err != nil {
			return nil, fmt.Errorf("create note: %w", err)
		}
		note = dto.ToEntity()
	} else {
		note = entities.Note{BookID: bookID, Chapter: chapter, Text: text}
	}

	now := s.timestamp()
	if note.BookID == 0 {
		note.BookID = bookID
	}
	if note.CreatedAt == "" {
		note.CreatedAt = now
	}
	if note.UpdatedAt == "" {
		note.UpdatedAt = now
	}
	if err := s.Notes.Save(&note); err != nil {
		return nil, fmt.Errorf("cache note: %w", err)
	}
	return &note, nil
}

// UpdateNote changes the text of a note on the catalog, then in the cache.
func (s *Service) UpdateNote(ctx context.Context, id int, text string) (*entities.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyNote
	}

	cached, err := s.Notes.GetNote(id)
	if err != nil {
		return nil, fmt.Errorf("load note: %w", err)
	}

	var note entities.Note
	switch {
	case s.Remote != nil:
		dto, err := s.Remote.UpdateNote(ctx, id, text)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, ErrNoteNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("update note: %w", err)
		}
		note = dto.ToEntity()
		if cached != nil {
			if note.BookID == 0 {
				note.BookID = cached.BookID
			}
			if note.CreatedAt == "" {
				note.CreatedAt = cached.CreatedAt
			}
			if note.Chapter == nil {
				note.Chapter = cached.Chapter
			}
		}
	case cached == nil:
		return nil, ErrNoteNotFound
	default:
		note = *cached
		note.Text = text
	}

	note.ID = id
	if note.UpdatedAt == "" {
		note.UpdatedAt = s.timestamp()
	}
	if err := s.Notes.Save(&note); err != nil {
		return nil, fmt.Errorf("cache note: %w", err)
	}
	return &note, nil
}

// DeleteNote removes a note from the catalog, then from the cache. A note
// the catalog no longer knows is still removed locally.
func (s *Service) DeleteNote(ctx context.Context, id int) error {
	if s.Remote != nil {
		if err := s.Remote.DeleteNote(ctx, id); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("delete note: %w", err)
		}
	}
	return s.Notes.Delete(id)
}

// GetReaderState returns the reader preferences of a book.
func (s *Service) GetReaderState(_ context.Context, bookID int) (entities.ReaderState, error) {
	return s.ReaderStates.Get(bookID)
}

// SaveReaderState stores reader preferences, clamping them to valid ranges.
func (s *Service) SaveReaderState(_ context.Context, state entities.ReaderState) (entities.ReaderState, error) {
	switch {
	case state.FontSize == 0:
		state.FontSize = entities.DefaultFontSize
	case state.FontSize < entities.MinFontSize:
		state.FontSize = entities.MinFontSize
	case state.FontSize > entities.MaxFontSize:
		state.FontSize = entities.MaxFontSize
	}
	state.Theme = entities.ParseReaderTheme(string(state.Theme))
	state.Brightness = clamp01(state.Brightness)

	if err := s.ReaderStates.Save(&state); err != nil {
		return state, fmt.Errorf("save reader state: %w", err)
	}
	return state, nil
}

// SaveReadingPosition stores where the user stopped reading a book.
func (s *Service) SaveReadingPosition(_ context.Context, position entities.ReadingPosition) (*entities.ReadingPosition, error) {
	if position.ChapterIndex < 0 {
		position.ChapterIndex = 0
	}
	if position.TextPosition < 0 {
		position.TextPosition = 0
	}
	position.ScrollPosition = clamp01(position.ScrollPosition)
	position.TotalProgress = clamp01(position.TotalProgress)

	if err := s.Positions.Save(&position); err != nil {
		return nil, fmt.Errorf("save reading position: %w", err)
	}
	return &position, nil
}

// GetReadingPosition returns the saved position, or nil when there is none.
func (s *Service) GetReadingPosition(_ context.Context, bookID int) (*entities.ReadingPosition, error) {
	return s.Positions.Get(bookID)
}

// UpdateProgress changes only the overall progress of a book.
func (s *Service) UpdateProgress(_ context.Context, bookID int, progress float64) error {
	return s.Positions.UpdateProgress(bookID, clamp01(progress))
}

// ClearReadingPosition forgets the reading position of a book.
func (s *Service) ClearReadingPosition(_ context.Context, bookID int) error {
	return s.Positions.Delete(bookID)
}

// ListReadingPositions returns every position, most recently read first.
func (s *Service) ListReadingPositions(_ context.Context) ([]entities.ReadingPosition, error) {
	return s.Positions.ListAll()
}

// DownloadBook stores the EPUB of a book, reporting progress to report.
func (s *Service) DownloadBook(ctx context.Context, bookID int, report downloads.ProgressFunc) error {
	return s.Downloads.Download(ctx, bookID, report)
}

// IsBookDownloaded reports whether the book is stored on this device.
func (s *Service) IsBookDownloaded(ctx context.Context, bookID int) (bool, error) {
	return s.Downloads.IsDownloaded(ctx, bookID)
}

// UpdateBookDownloadStatus overrides the cached download state of a book.
func (s *Service) UpdateBookDownloadStatus(ctx context.Context, bookID int, downloaded bool, path string) error {
	return s.Downloads.UpdateDownloadStatus(ctx, bookID, downloaded, path)
}

// CoverPath returns the local file of a book's cover, fetching it on first use.
func (s *Service) CoverPath(ctx context.Context, bookID int) (string, error) {
	if s.Covers == nil {
		return "", ErrNoCover
	}
	row, err := s.Books.GetBookByID(bookID)
	if errors.Is(err, books.ErrBookNotFound) {
		row, err = s.Reconciler.FetchBook(ctx, bookID)
		if reconcile.IsNotFound(err) {
			return "", ErrBookNotFound
		}
	}
	if err != nil {
		return "", err
	}
	if row.CoverURL == "" {
		return "", ErrNoCover
	}
	return s.Covers.GetCover(ctx, bookID, row.CoverURL)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
