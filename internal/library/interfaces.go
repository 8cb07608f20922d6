package library

import (
	"context"

	"github.com/mrlokans/booklibrary/internal/catalog"
	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/downloads"
	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/reconcile"
)

// BookStore provides cached books.
type BookStore interface {
	GetBookByID(id int) (*entities.Book, error)
	ListBooks(filter books.Filter) ([]entities.Book, error)
}

// GenreStore provides cached genres and book/genre relations.
type GenreStore interface {
	GetAllGenres() ([]entities.Genre, error)
	GetGenresForBook(bookID int) ([]string, error)
	GetGenresForBooks(bookIDs []int) (map[int][]string, error)
}

// BookmarkStore persists bookmarks.
type BookmarkStore interface {
	GetBookmark(bookID int) (*entities.Bookmark, error)
	GetBookmarksForBooks(bookIDs []int) (map[int]entities.Bookmark, error)
	ListBookmarks() ([]entities.Bookmark, error)
	ListBookmarksByStatus(status entities.BookmarkStatus) ([]entities.Bookmark, error)
	UpsertBookmark(bookmark *entities.Bookmark) error
	DeleteBookmark(bookID int) error
}

// NoteStore persists notes.
type NoteStore interface {
	GetNote(id int) (*entities.Note, error)
	ListForBook(bookID int) ([]entities.Note, error)
	ListForChapter(bookID, chapter int) ([]entities.Note, error)
	Save(note *entities.Note) error
	ReplaceForBook(bookID int, notes []entities.Note) error
	Delete(id int) error
}

// ReaderStateStore persists per-book reader preferences.
type ReaderStateStore interface {
	Get(bookID int) (entities.ReaderState, error)
	Save(state *entities.ReaderState) error
}

// PositionStore persists reading positions.
type PositionStore interface {
	Get(bookID int) (*entities.ReadingPosition, error)
	Save(position *entities.ReadingPosition) error
	UpdateProgress(bookID int, progress float64) error
	Delete(bookID int) error
	ListAll() ([]entities.ReadingPosition, error)
}

// Remote is the part of the catalog client used for user data.
type Remote interface {
	CreateBookmark(ctx context.Context, req catalog.CreateBookmarkRequest) error
	DeleteBookmark(ctx context.Context, bookID int) error
	ListNotes(ctx context.Context, filter catalog.NoteFilter) ([]catalog.NoteDTO, error)
	CreateNote(ctx context.Context, req catalog.CreateNoteRequest) (*catalog.NoteDTO, error)
	UpdateNote(ctx context.Context, id int, text string) (*catalog.NoteDTO, error)
	DeleteNote(ctx context.Context, id int) error
}

// Reconciler refreshes the cache from the catalog.
type Reconciler interface {
	Refresh(ctx context.Context, filter books.Filter) reconcile.Result
	RefreshGenres(ctx context.Context) error
	FetchBook(ctx context.Context, id int) (*entities.Book, error)
}

// Downloader stores book files and checks for them.
type Downloader interface {
	IsDownloaded(ctx context.Context, bookID int) (bool, error)
	Download(ctx context.Context, bookID int, report downloads.ProgressFunc) error
	UpdateDownloadStatus(ctx context.Context, bookID int, downloaded bool, path string) error
}

// CoverCache resolves cover images to local files.
type CoverCache interface {
	GetCover(ctx context.Context, bookID int, coverURL string) (string, error)
}
