package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/booklibrary/internal/catalog"
	"github.com/mrlokans/booklibrary/internal/covers"
	"github.com/mrlokans/booklibrary/internal/database"
	"github.com/mrlokans/booklibrary/internal/database/bookmarks"
	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/database/genres"
	"github.com/mrlokans/booklibrary/internal/database/notes"
	"github.com/mrlokans/booklibrary/internal/database/positions"
	"github.com/mrlokans/booklibrary/internal/database/readerstate"
	"github.com/mrlokans/booklibrary/internal/database/sync"
	"github.com/mrlokans/booklibrary/internal/downloads"
	"github.com/mrlokans/booklibrary/internal/http"
	"github.com/mrlokans/booklibrary/internal/library"
	"github.com/mrlokans/booklibrary/internal/presentation"
	"github.com/mrlokans/booklibrary/internal/reconcile"
	"github.com/mrlokans/booklibrary/internal/scheduler"
	"github.com/mrlokans/booklibrary/internal/storage"
	"github.com/mrlokans/booklibrary/internal/storage/providers/filesystem"
	"github.com/mrlokans/booklibrary/internal/storage/providers/mediaindex"
	"github.com/mrlokans/booklibrary/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

var _ library.BookStore = (*books.Repository)(nil)
var _ downloads.BookStore = (*books.Repository)(nil)
var _ library.GenreStore = (*genres.Repository)(nil)
var _ library.BookmarkStore = (*bookmarks.Repository)(nil)
var _ library.NoteStore = (*notes.Repository)(nil)
var _ library.ReaderStateStore = (*readerstate.Repository)(nil)
var _ library.PositionStore = (*positions.Repository)(nil)
var _ reconcile.Store = (*reconcile.GormStore)(nil)

// Storage backends
var _ storage.Store = (*filesystem.Store)(nil)
var _ storage.Store = (*mediaindex.Store)(nil)
var _ storage.Opener = (*mediaindex.Store)(nil)

// =============================================================================
// Catalog Server
// =============================================================================

var _ reconcile.CatalogSource = (*catalog.Client)(nil)
var _ downloads.Source = (*catalog.Client)(nil)
var _ library.Remote = (*catalog.Client)(nil)

// =============================================================================
// Use Cases
// =============================================================================

var _ library.Reconciler = (*reconcile.Reconciler)(nil)
var _ library.Downloader = (*downloads.Manager)(nil)
var _ library.CoverCache = (*covers.Cache)(nil)
var _ presentation.Library = (*library.Service)(nil)
var _ http.BookStore = (*library.Service)(nil)
var _ http.NoteStore = (*library.Service)(nil)
var _ http.ReadingStore = (*library.Service)(nil)

// =============================================================================
// Background Work
// =============================================================================

var _ tasks.CatalogRefresher = (*reconcile.Reconciler)(nil)
var _ tasks.Downloader = (*downloads.Manager)(nil)
var _ scheduler.Syncer = (*reconcile.Reconciler)(nil)
var _ http.SyncScheduler = (*scheduler.CatalogSyncScheduler)(nil)
var _ http.TaskQueue = (*tasks.Client)(nil)

// =============================================================================
// Progress Tracking
// =============================================================================

var _ reconcile.ProgressReporter = (*sync.Repository)(nil)
var _ reconcile.CoverInvalidator = (*covers.Cache)(nil)
var _ http.SyncProgressSource = (*sync.Repository)(nil)
var _ http.Pinger = (*database.Database)(nil)
