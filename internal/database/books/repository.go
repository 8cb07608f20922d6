// Package books provides database operations for cached catalog books.
//
// This package implements the BookStore interfaces used by the download
// manager and the library service.
//
// # Interface Implementation
//
//	var _ downloads.BookStore = (*Repository)(nil)
//	var _ library.BookStore = (*Repository)(nil)
//
// # Usage
//
//	repo := books.NewRepository(db)
//	book, err := repo.GetBookByID(123)
package books

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/booklibrary/internal/entities"
)

// ErrBookNotFound is returned when the book is not in the local cache.
var ErrBookNotFound = errors.New("book not found")

const (
	SortDateAdded = "date_added"
	SortTitle     = "title"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Filter selects and orders cached books. Empty fields do not filter.
type Filter struct {
	Query          string
	Genre          string
	BookmarkStatus string
	Sort           string
	Order          string
}

// IsUnfiltered reports whether the filter selects the whole catalog.
func (f Filter) IsUnfiltered() bool {
	return strings.TrimSpace(f.Query) == "" && f.Genre == "" && f.BookmarkStatus == ""
}

// NormalizeSort maps unknown sort keys to date_added.
func NormalizeSort(sort string) string {
	if sort == SortTitle {
		return SortTitle
	}
	return SortDateAdded
}

// NormalizeOrder maps unknown orders to desc.
func NormalizeOrder(order string) string {
	if strings.EqualFold(order, OrderAsc) {
		return OrderAsc
	}
	return OrderDesc
}

// Repository handles all cached book database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// GetBookByID retrieves a cached book. Returns ErrBookNotFound when missing.
func (r *Repository) GetBookByID(id int) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Where("id = ?", id).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// UpsertBook inserts the book or overwrites every column of the existing row.
func (r *Repository) UpsertBook(book *entities.Book) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Omit(clause.Associations).Create(book).Error
}

// UpdateDownloadStatus sets the download flag and the stored location of a book.
// A false flag always clears the location.
func (r *Repository) UpdateDownloadStatus(id int, downloaded bool, path string) error {
	if !downloaded {
		path = ""
	}
	result := r.db.Model(&entities.Book{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_downloaded":   downloaded,
			"local_file_path": path,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update download status of book %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// ListBooks returns the cached books matching the filter.
func (r *Repository) ListBooks(filter Filter) ([]entities.Book, error) {
	query := r.db.Model(&entities.Book{}).Select("books.*")

	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + q + "%"
		query = query.Where("(books.title LIKE ? OR books.description LIKE ?)", pattern, pattern)
	}
	if filter.Genre != "" {
		query = query.
			Joins("JOIN book_genres ON book_genres.book_id = books.id").
			Where("book_genres.genre_name = ?", filter.Genre)
	}
	if filter.BookmarkStatus != "" {
		query = query.
			Joins("JOIN bookmarks ON bookmarks.book_id = books.id").
			Where("bookmarks.status = ?", filter.BookmarkStatus)
	}

	var books []entities.Book
	err := query.Order(orderClause(filter.Sort, filter.Order)).Find(&books).Error
	return books, err
}

// ListDownloaded returns the books the cache marks as downloaded.
func (r *Repository) ListDownloaded() ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.Where("is_downloaded = ?", true).Order("title ASC").Find(&books).Error
	return books, err
}

// Count returns the number of cached books.
func (r *Repository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&entities.Book{}).Count(&count).Error
	return count, err
}

// ClearAll removes every cached book. Genre relations go with them.
func (r *Repository) ClearAll() error {
	return r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&entities.Book{}).Error
}

func orderClause(sort, order string) string {
	column := "books.date_added"
	if NormalizeSort(sort) == SortTitle {
		column = "books.title"
	}
	direction := "DESC"
	if NormalizeOrder(order) == OrderAsc {
		direction = "ASC"
	}
	return fmt.Sprintf("%s %s, books.id %s", column, direction, direction)
}
