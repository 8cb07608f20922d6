// Package readerstate stores per-book reader preferences.
package readerstate

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mrlokans/booklibrary/internal/entities"
)

// Repository handles reader state database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new reader state repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the stored reader state of a book, or the defaults when the
// user never changed anything.
func (r *Repository) Get(bookID int) (entities.ReaderState, error) {
	var state entities.ReaderState
	err := r.db.Where("book_id = ?", bookID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entities.DefaultReaderState(bookID), nil
	}
	if err != nil {
		return entities.ReaderState{}, err
	}
	return state, nil
}

// Save stores the reader state, replacing the previous one.
func (r *Repository) Save(state *entities.ReaderState) error {
	return r.db.Save(state).Error
}
