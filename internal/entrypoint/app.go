package entrypoint

import (
	"errors"
	"fmt"
	"log"

	"github.com/mrlokans/booklibrary/internal/catalog"
	"github.com/mrlokans/booklibrary/internal/config"
	"github.com/mrlokans/booklibrary/internal/covers"
	"github.com/mrlokans/booklibrary/internal/database"
	"github.com/mrlokans/booklibrary/internal/database/bookmarks"
	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/database/genres"
	"github.com/mrlokans/booklibrary/internal/database/notes"
	"github.com/mrlokans/booklibrary/internal/database/positions"
	"github.com/mrlokans/booklibrary/internal/database/readerstate"
	syncrepo "github.com/mrlokans/booklibrary/internal/database/sync"
	"github.com/mrlokans/booklibrary/internal/downloads"
	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/library"
	"github.com/mrlokans/booklibrary/internal/reconcile"
	"github.com/mrlokans/booklibrary/internal/storage"
	"github.com/mrlokans/booklibrary/internal/storage/providers/filesystem"
	"github.com/mrlokans/booklibrary/internal/storage/providers/mediaindex"
)

// App holds the components shared by the server and the CLI commands.
type App struct {
	Config       *config.Config
	Database     *database.Database
	Catalog      *catalog.Client
	Books        *books.Repository
	Storage      storage.Store
	Downloads    *downloads.Manager
	Covers       *covers.Cache // nil when the cover cache could not be created
	Reconciler   *reconcile.Reconciler
	SyncProgress *syncrepo.Repository
	Library      *library.Service
}

// NewApp validates the configuration, opens the local cache and wires the
// catalog client, storage, downloads and reconciler into a library service.
func NewApp(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app, err := wire(cfg, db)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return app, nil
}

func wire(cfg *config.Config, db *database.Database) (*App, error) {
	client, err := catalog.NewClient(cfg.API.BaseURL,
		catalog.WithTimeouts(cfg.API.ConnectTimeout, cfg.API.ReadTimeout, cfg.API.WriteTimeout),
		catalog.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog client: %w", err)
	}

	store, err := newStorage(cfg, db)
	if err != nil {
		return nil, err
	}
	log.Printf("Downloads stored in %s (%s mode)", cfg.Downloads.DownloadsPath(), cfg.Downloads.Mode)

	bookRepo := books.NewRepository(db.DB)
	manager := downloads.NewManager(bookRepo, client, store, downloads.WithChunkSize(cfg.Downloads.ChunkSize))

	syncProgress := syncrepo.NewRepositoryWithType(db.DB, entities.SyncTypeCatalog)
	reconciler := reconcile.New(client, reconcile.NewGormStore(db.DB),
		reconcile.WithPageSize(cfg.Sync.PageSize),
		reconcile.WithClearBooksOnFullRefresh(cfg.Sync.ClearBooksOnFullRefresh),
	)
	reconciler.SetProgressReporter(syncProgress)

	deps := library.Deps{
		Books:        bookRepo,
		Genres:       genres.NewRepository(db.DB),
		Bookmarks:    bookmarks.NewRepository(db.DB),
		Notes:        notes.NewRepository(db.DB),
		ReaderStates: readerstate.NewRepository(db.DB),
		Positions:    positions.NewRepository(db.DB),
		Remote:       client,
		Reconciler:   reconciler,
		Downloads:    manager,
	}

	coverCache, err := covers.NewCache(cfg.Covers.Dir, cfg.API.BaseURL)
	if err != nil {
		log.Printf("WARNING: Failed to initialize cover cache: %v", err)
	} else {
		log.Printf("Cover cache initialized at %s", coverCache.CacheDir())
		reconciler.SetCoverInvalidator(coverCache)
		deps.Covers = coverCache
	}

	return &App{
		Config:       cfg,
		Database:     db,
		Catalog:      client,
		Books:        bookRepo,
		Storage:      store,
		Downloads:    manager,
		Covers:       coverCache,
		Reconciler:   reconciler,
		SyncProgress: syncProgress,
		Library:      library.NewService(deps),
	}, nil
}

func newStorage(cfg *config.Config, db *database.Database) (storage.Store, error) {
	dir := cfg.Downloads.DownloadsPath()
	switch cfg.Downloads.Mode {
	case config.DownloadsModeLegacy:
		store, err := filesystem.NewStore(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize download directory: %w", err)
		}
		return store, nil
	default:
		store, err := mediaindex.NewStore(db.DB, dir, cfg.Downloads.RelativePath())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize media index: %w", err)
		}
		return store, nil
	}
}

// Close releases the database.
func (a *App) Close() error {
	return a.Database.Close()
}
