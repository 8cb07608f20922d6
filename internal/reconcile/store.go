package reconcile

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/database/genres"
	"github.com/mrlokans/booklibrary/internal/entities"
)

// GormStore implements Store on the local cache database.
type GormStore struct {
	db     *gorm.DB
	books  *books.Repository
	genres *genres.Repository
}

// NewGormStore creates a reconciliation store on db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:     db,
		books:  books.NewRepository(db),
		genres: genres.NewRepository(db),
	}
}

// MergeBook writes one server book in a single transaction.
func (s *GormStore) MergeBook(book entities.Book, names []string) (bool, error) {
	coverChanged := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		bookRepo := s.books.WithTx(tx)

		existing, err := bookRepo.GetBookByID(book.ID)
		switch {
		case errors.Is(err, books.ErrBookNotFound):
			book.IsDownloaded = false
			book.LocalFilePath = ""
		case err != nil:
			return err
		default:
			book.IsDownloaded = existing.IsDownloaded
			book.LocalFilePath = existing.LocalFilePath
			coverChanged = existing.CoverURL != book.CoverURL
		}

		if err := bookRepo.UpsertBook(&book); err != nil {
			return err
		}
		return s.genres.WithTx(tx).ReplaceBookGenres(book.ID, names)
	})
	if err != nil {
		return false, fmt.Errorf("failed to merge book %d: %w", book.ID, err)
	}
	return coverChanged, nil
}

func (s *GormStore) ClearBookGenreRelations() error {
	return s.genres.ClearAllBookGenreRelations()
}

func (s *GormStore) ClearBooks() error {
	return s.books.ClearAll()
}

func (s *GormStore) ReplaceGenres(list []entities.Genre) error {
	return s.genres.ClearAndInsertAll(list)
}

func (s *GormStore) GetBook(id int) (*entities.Book, error) {
	return s.books.GetBookByID(id)
}
