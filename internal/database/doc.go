// Package database provides the local cache of the remote catalog.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup and migrations
//	├── books/           # Cached catalog books and download state
//	├── genres/          # Genres and book/genre relations
//	├── bookmarks/       # Reading status per book
//	├── notes/           # Cached notes
//	├── readerstate/     # Reader preferences per book
//	├── positions/       # Reading positions
//	└── sync/            # Reconciliation progress tracking
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.NewDatabase("./booklibrary.db")
//
//	booksRepo := books.NewRepository(db.DB)
//	genresRepo := genres.NewRepository(db.DB)
//
//	book, err := booksRepo.GetBookByID(42)
//	names, err := genresRepo.GetGenresForBook(42)
//
// # Interface Implementations
//
//   - books.Repository: implements downloads.BookStore and library.BookStore
//   - genres.Repository: implements library.GenreStore
//   - sync.Repository: implements reconcile.ProgressReporter
//   - reconcile.GormStore: implements reconcile.Store on top of books and genres
//
// # Schema Evolution
//
// The schema is managed with AutoMigrate only. Changes must be additive so that
// an existing cache keeps working after an upgrade.
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Register the entity in Migrate
//  5. Add compile-time interface check in internal/interfaces/checks.go
package database
