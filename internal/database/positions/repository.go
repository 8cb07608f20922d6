// Package positions stores the last reading position of each book.
package positions

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/booklibrary/internal/entities"
)

// Repository handles reading position database operations.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a new reading positions repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Get returns the reading position of a book, or nil when none was saved.
func (r *Repository) Get(bookID int) (*entities.ReadingPosition, error) {
	var position entities.ReadingPosition
	err := r.db.Where("book_id = ?", bookID).First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &position, nil
}

// Save upserts the position. A zero timestamp is replaced by the current time.
func (r *Repository) Save(position *entities.ReadingPosition) error {
	if position.LastReadTimestamp == 0 {
		position.LastReadTimestamp = r.now().UnixMilli()
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "book_id"}},
		UpdateAll: true,
	}).Create(position).Error
}

// UpdateProgress changes only the overall progress and the read timestamp.
// Creates the position when the book has none yet.
func (r *Repository) UpdateProgress(bookID int, progress float64) error {
	existing, err := r.Get(bookID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.Save(&entities.ReadingPosition{BookID: bookID, TotalProgress: progress})
	}
	return r.db.Model(&entities.ReadingPosition{}).
		Where("book_id = ?", bookID).
		Updates(map[string]any{
			"total_progress":      progress,
			"last_read_timestamp": r.now().UnixMilli(),
		}).Error
}

// Delete removes the position of a book.
func (r *Repository) Delete(bookID int) error {
	return r.db.Where("book_id = ?", bookID).Delete(&entities.ReadingPosition{}).Error
}

// ListAll returns every saved position, most recently read first.
func (r *Repository) ListAll() ([]entities.ReadingPosition, error) {
	var positions []entities.ReadingPosition
	err := r.db.Order("last_read_timestamp DESC").Find(&positions).Error
	return positions, err
}
