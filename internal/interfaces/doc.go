// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - library.BookStore, GenreStore, BookmarkStore, NoteStore, ReaderStateStore,
//     PositionStore: cached data behind the library service (internal/library/interfaces.go)
//   - downloads.BookStore: download state of cached books (internal/downloads/manager.go)
//   - reconcile.Store: writes of a catalog refresh (internal/reconcile/reconciler.go)
//   - storage.Store: where downloaded files live (internal/storage/store.go)
//
// ## Catalog Server Interfaces
//
//   - reconcile.CatalogSource: paged books and genres
//   - downloads.Source: book lookups and EPUB streams
//   - library.Remote: bookmarks and notes owned by the server
//
// ## Presentation and Transport
//
//   - presentation.Library: use cases driven by the screen state holders
//   - http.BookStore, NoteStore, ReadingStore: use cases behind the API
//
// ## Progress Tracking Interfaces
//
//   - reconcile.ProgressReporter: catalog sync progress (internal/database/sync)
//   - reconcile.CoverInvalidator: drops covers whose URL changed (internal/covers)
//
// # Adding a New Storage Backend
//
//  1. Create a provider in internal/storage/providers/
//
//     type Store struct { ... }
//
//     func (s *Store) Create(ctx context.Context, name, mimeType string) (storage.Sink, error)
//     func (s *Store) Find(ctx context.Context, name string) (string, bool, error)
//     func (s *Store) Verify(ctx context.Context, location string) bool
//     func (s *Store) Remove(ctx context.Context, location string) error
//     func (s *Store) List(ctx context.Context) ([]storage.FileInfo, error)
//
//  2. Add a DOWNLOADS_MODE value and select it in entrypoint/app.go
//
// # Adding a New Background Task
//
//  1. Define the task and its processor in internal/tasks/
//
//     type WarmCoversTask struct { BookID int }
//
//     func (t WarmCoversTask) Config() backlite.QueueConfig
//
//     func NewWarmCoversQueue(cache CoverWarmer) backlite.Queue
//
//  2. Register the queue in entrypoint.go and list it in tasks.Types
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the full list.
package interfaces
