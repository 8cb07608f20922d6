package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booklibrary/internal/covers"
	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/library"
)

// BookStore is the part of the library the book endpoints use.
type BookStore interface {
	GetBook(ctx context.Context, id int) (*library.Book, error)
	GetGenres(ctx context.Context) ([]entities.Genre, error)
	CoverPath(ctx context.Context, bookID int) (string, error)
	IsBookDownloaded(ctx context.Context, bookID int) (bool, error)
	CreateBookmark(ctx context.Context, bookID int, status string, chapter int) (*entities.Bookmark, error)
	DeleteBookmark(ctx context.Context, bookID int) error
	ListBookmarks(ctx context.Context, status string) ([]entities.Bookmark, error)
}

// BooksController serves book details, covers, bookmarks and genres.
type BooksController struct {
	books   BookStore
	screens ScreenResolver
}

func NewBooksController(books BookStore, screens ScreenResolver) *BooksController {
	return &BooksController{books: books, screens: screens}
}

// GetBook handles GET /api/books/:id
// Loads the book into the session's details screen and returns its state.
func (bc *BooksController) GetBook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	details := bc.screens.Screen(c).Details
	details.Load(c.Request.Context(), id)

	snap := details.Snapshot()
	if snap.Book == nil {
		if snap.Error == library.ErrBookNotFound.Error() {
			respondNotFound(c, "book")
			return
		}
		respondError(c, http.StatusBadGateway, snap.Error)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// OpenBook handles POST /api/books/:id/open
// Opens the stored file or downloads the book, like the details screen's
// main button.
func (bc *BooksController) OpenBook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	details := bc.screens.Screen(c).Details
	if snap := details.Snapshot(); snap.Book == nil || snap.Book.ID != id {
		details.Load(c.Request.Context(), id)
	}
	if details.Snapshot().Book == nil {
		respondNotFound(c, "book")
		return
	}

	details.HandleOpen(c.Request.Context())
	c.JSON(http.StatusAccepted, details.Snapshot())
}

// Events handles GET /api/books/:id/events
// Streams the details screen of the book as server-sent events.
func (bc *BooksController) Events(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	details := bc.screens.Screen(c).Details
	if snap := details.Snapshot(); snap.Book == nil || snap.Book.ID != id {
		details.Load(c.Request.Context(), id)
	}
	updates, unsubscribe := details.Subscribe()
	defer unsubscribe()

	streamEvents(c, updates, details.OpenFileEvents())
}

// GetCover handles GET /api/books/:id/cover
func (bc *BooksController) GetCover(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	path, err := bc.books.CoverPath(c.Request.Context(), id)
	switch {
	case errors.Is(err, library.ErrBookNotFound), errors.Is(err, library.ErrNoCover):
		respondNotFound(c, "cover")
		return
	case err != nil:
		respondBadGateway(c, err)
		return
	}

	c.Header("Content-Type", covers.ContentType(path))
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(path)
}

// DownloadStatusResponse reports whether a book is stored on this device.
type DownloadStatusResponse struct {
	BookID       int    `json:"book_id"`
	IsDownloaded bool   `json:"is_downloaded"`
	FilePath     string `json:"file_path,omitempty"`
}

// GetDownloadStatus handles GET /api/books/:id/download/status
// Runs the existence check, which also repairs a stale download state.
func (bc *BooksController) GetDownloadStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	downloaded, err := bc.books.IsBookDownloaded(c.Request.Context(), id)
	if err != nil {
		respondInternalError(c, err, "download status")
		return
	}

	resp := DownloadStatusResponse{BookID: id, IsDownloaded: downloaded}
	if downloaded {
		if book, err := bc.books.GetBook(c.Request.Context(), id); err == nil {
			resp.FilePath = book.LocalFilePath
		}
	}
	c.JSON(http.StatusOK, resp)
}

// BookmarkRequest sets the reading status of a book.
type BookmarkRequest struct {
	Status         string `json:"status"`
	CurrentChapter int    `json:"current_chapter"`
}

// CreateBookmark handles POST /api/books/:id/bookmark
func (bc *BooksController) CreateBookmark(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req BookmarkRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}
	if req.CurrentChapter < 0 {
		respondBadRequest(c, "current_chapter must not be negative")
		return
	}

	bookmark, err := bc.books.CreateBookmark(c.Request.Context(), id, req.Status, req.CurrentChapter)
	if err != nil {
		respondInternalError(c, err, "create bookmark")
		return
	}
	respondCreated(c, bookmark)
}

// DeleteBookmark handles DELETE /api/books/:id/bookmark
func (bc *BooksController) DeleteBookmark(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := bc.books.DeleteBookmark(c.Request.Context(), id); err != nil {
		respondInternalError(c, err, "delete bookmark")
		return
	}
	respondSuccess(c, "bookmark deleted")
}

// ListBookmarks handles GET /api/bookmarks?status=
func (bc *BooksController) ListBookmarks(c *gin.Context) {
	list, err := bc.books.ListBookmarks(c.Request.Context(), c.Query("status"))
	if err != nil {
		respondInternalError(c, err, "list bookmarks")
		return
	}
	if list == nil {
		list = []entities.Bookmark{}
	}
	c.JSON(http.StatusOK, gin.H{"bookmarks": list, "count": len(list)})
}

// ListGenres handles GET /api/genres
func (bc *BooksController) ListGenres(c *gin.Context) {
	genres, err := bc.books.GetGenres(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "list genres")
		return
	}
	if genres == nil {
		genres = []entities.Genre{}
	}
	c.JSON(http.StatusOK, gin.H{"genres": genres, "count": len(genres)})
}
