// Package bookmarks provides database operations for per-book reading status.
package bookmarks

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/booklibrary/internal/entities"
)

// Repository handles bookmark database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new bookmarks repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetBookmark returns the bookmark of a book, or nil when there is none.
func (r *Repository) GetBookmark(bookID int) (*entities.Bookmark, error) {
	var bookmark entities.Bookmark
	err := r.db.Where("book_id = ?", bookID).First(&bookmark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bookmark, nil
}

// GetBookmarksForBooks returns bookmarks keyed by book ID.
func (r *Repository) GetBookmarksForBooks(bookIDs []int) (map[int]entities.Bookmark, error) {
	result := make(map[int]entities.Bookmark, len(bookIDs))
	if len(bookIDs) == 0 {
		return result, nil
	}
	var bookmarks []entities.Bookmark
	if err := r.db.Where("book_id IN ?", bookIDs).Find(&bookmarks).Error; err != nil {
		return nil, err
	}
	for _, b := range bookmarks {
		result[b.BookID] = b
	}
	return result, nil
}

// ListBookmarks returns all bookmarks, most recently updated first.
func (r *Repository) ListBookmarks() ([]entities.Bookmark, error) {
	var bookmarks []entities.Bookmark
	err := r.db.Order("last_updated DESC").Find(&bookmarks).Error
	return bookmarks, err
}

// ListBookmarksByStatus returns the bookmarks with the given status.
func (r *Repository) ListBookmarksByStatus(status entities.BookmarkStatus) ([]entities.Bookmark, error) {
	var bookmarks []entities.Bookmark
	err := r.db.Where("status = ?", status).Order("last_updated DESC").Find(&bookmarks).Error
	return bookmarks, err
}

// UpsertBookmark creates the bookmark or replaces the existing one.
func (r *Repository) UpsertBookmark(bookmark *entities.Bookmark) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "book_id"}},
		UpdateAll: true,
	}).Create(bookmark).Error
}

// DeleteBookmark removes the bookmark of a book. Missing bookmarks are ignored.
func (r *Repository) DeleteBookmark(bookID int) error {
	return r.db.Where("book_id = ?", bookID).Delete(&entities.Bookmark{}).Error
}
