// Package notes provides the local cache of book notes.
package notes

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/booklibrary/internal/entities"
)

// Repository handles note database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new notes repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetNote returns a note by ID, or nil when it is not cached.
func (r *Repository) GetNote(id int) (*entities.Note, error) {
	var note entities.Note
	err := r.db.First(&note, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// ListForBook returns the notes of a book, newest first.
func (r *Repository) ListForBook(bookID int) ([]entities.Note, error) {
	var notes []entities.Note
	err := r.db.Where("book_id = ?", bookID).Order("created_at DESC, id DESC").Find(&notes).Error
	return notes, err
}

// ListForChapter returns the notes attached to one chapter of a book.
func (r *Repository) ListForChapter(bookID, chapter int) ([]entities.Note, error) {
	var notes []entities.Note
	err := r.db.Where("book_id = ? AND chapter = ?", bookID, chapter).
		Order("created_at DESC, id DESC").
		Find(&notes).Error
	return notes, err
}

// Save inserts the note or replaces the row with the same ID.
func (r *Repository) Save(note *entities.Note) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(note).Error
}

// ReplaceForBook swaps the cached notes of a book for the given list.
func (r *Repository) ReplaceForBook(bookID int, notes []entities.Note) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", bookID).Delete(&entities.Note{}).Error; err != nil {
			return fmt.Errorf("failed to clear notes of book %d: %w", bookID, err)
		}
		for i := range notes {
			notes[i].BookID = bookID
			if err := tx.Create(&notes[i]).Error; err != nil {
				return fmt.Errorf("failed to cache note %d: %w", notes[i].ID, err)
			}
		}
		return nil
	})
}

// Delete removes a cached note. Missing notes are ignored.
func (r *Repository) Delete(id int) error {
	return r.db.Delete(&entities.Note{}, id).Error
}
