// Package genres provides database operations for genres and book/genre relations.
//
// # Usage
//
//	repo := genres.NewRepository(db)
//	err := repo.ReplaceBookGenres(42, []string{"Fantasy", "Adventure"})
package genres

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/booklibrary/internal/entities"
)

// Repository handles genre and book_genres database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new genres repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// GetAllGenres returns every genre ordered by name.
func (r *Repository) GetAllGenres() ([]entities.Genre, error) {
	var genres []entities.Genre
	err := r.db.Order("name ASC").Find(&genres).Error
	return genres, err
}

// ClearAndInsertAll replaces the genre table with the given list.
// Deleting a genre cascades to its book relations, so relations pointing to
// genres that are still present afterwards are restored.
func (r *Repository) ClearAndInsertAll(genres []entities.Genre) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var relations []entities.BookGenre
		if err := tx.Find(&relations).Error; err != nil {
			return fmt.Errorf("failed to snapshot book genres: %w", err)
		}

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&entities.Genre{}).Error; err != nil {
			return fmt.Errorf("failed to clear genres: %w", err)
		}

		kept := make(map[string]bool, len(genres))
		for _, g := range genres {
			name := strings.TrimSpace(g.Name)
			if name == "" || kept[name] {
				continue
			}
			kept[name] = true
			genre := entities.Genre{Name: name, Count: g.Count}
			if err := tx.Create(&genre).Error; err != nil {
				return fmt.Errorf("failed to insert genre %q: %w", name, err)
			}
		}

		for _, rel := range relations {
			if !kept[rel.GenreName] {
				continue
			}
			if err := insertRelation(tx, rel.BookID, rel.GenreName); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureGenres creates the named genres with a zero count when they are missing.
func (r *Repository) EnsureGenres(names []string) error {
	for _, name := range names {
		genre := entities.Genre{Name: name}
		err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&genre).Error
		if err != nil {
			return fmt.Errorf("failed to ensure genre %q: %w", name, err)
		}
	}
	return nil
}

// GetGenresForBook returns the genre names of a book ordered by name.
func (r *Repository) GetGenresForBook(bookID int) ([]string, error) {
	var names []string
	err := r.db.Model(&entities.BookGenre{}).
		Where("book_id = ?", bookID).
		Order("genre_name ASC").
		Pluck("genre_name", &names).Error
	return names, err
}

// GetGenresForBooks returns genre names keyed by book ID.
func (r *Repository) GetGenresForBooks(bookIDs []int) (map[int][]string, error) {
	result := make(map[int][]string, len(bookIDs))
	if len(bookIDs) == 0 {
		return result, nil
	}
	var relations []entities.BookGenre
	err := r.db.Where("book_id IN ?", bookIDs).Order("genre_name ASC").Find(&relations).Error
	if err != nil {
		return nil, err
	}
	for _, rel := range relations {
		result[rel.BookID] = append(result[rel.BookID], rel.GenreName)
	}
	return result, nil
}

// ReplaceBookGenres deletes the relations of a book and inserts the given
// names. Names are trimmed, blanks and duplicates skipped; unknown genres are
// created with a zero count.
func (r *Repository) ReplaceBookGenres(bookID int, names []string) error {
	if err := r.db.Where("book_id = ?", bookID).Delete(&entities.BookGenre{}).Error; err != nil {
		return fmt.Errorf("failed to delete genres of book %d: %w", bookID, err)
	}

	cleaned := CleanNames(names)
	if err := r.EnsureGenres(cleaned); err != nil {
		return err
	}
	for _, name := range cleaned {
		if err := insertRelation(r.db, bookID, name); err != nil {
			return err
		}
	}
	return nil
}

// ClearAllBookGenreRelations removes every book/genre relation.
func (r *Repository) ClearAllBookGenreRelations() error {
	return r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&entities.BookGenre{}).Error
}

// CleanNames trims genre names and drops blanks and duplicates, keeping order.
func CleanNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		cleaned = append(cleaned, name)
	}
	return cleaned
}

func insertRelation(db *gorm.DB, bookID int, genre string) error {
	rel := entities.BookGenre{BookID: bookID, GenreName: genre}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Omit(clause.Associations).Create(&rel).Error
	if err != nil {
		return fmt.Errorf("failed to link book %d to genre %q: %w", bookID, genre, err)
	}
	return nil
}
