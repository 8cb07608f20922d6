// Package reconcile merges the remote catalog into the local cache.
//
// Remote pages are fetched one at a time and written book by book. Local
// download state always survives a merge. Failures end a refresh early but
// never undo books that were already merged.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mrlokans/booklibrary/internal/catalog"
	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/entities"
)

// DefaultPageSize is the number of books requested per page.
const DefaultPageSize = 20

// CatalogSource is the part of the catalog client the reconciler reads.
type CatalogSource interface {
	ListBooks(ctx context.Context, params catalog.ListParams) (*catalog.BookPage, error)
	GetBook(ctx context.Context, id int) (*catalog.BookDTO, error)
	ListGenres(ctx context.Context) ([]catalog.GenreDTO, error)
}

// Store is the part of the local cache the reconciler writes.
type Store interface {
	// MergeBook upserts a server book, keeping the cached download state,
	// and replaces its genre relations. It reports whether the cover URL
	// of an already cached book changed.
	MergeBook(book entities.Book, genres []string) (coverChanged bool, err error)
	ClearBookGenreRelations() error
	ClearBooks() error
	ReplaceGenres(genres []entities.Genre) error
	GetBook(id int) (*entities.Book, error)
}

// ProgressReporter records the progress of a catalog refresh.
type ProgressReporter interface {
	StartSync() error
	SetTotal(total int) error
	RecordPage(page, processed, failed int) error
	CompleteSync(stopReason, errorMsg string) error
}

// CoverInvalidator drops cached covers of books whose cover URL changed.
type CoverInvalidator interface {
	InvalidateCover(bookID int) error
}

// StopReason tells why a refresh stopped fetching pages.
type StopReason string

const (
	StopShortPage    StopReason = "short_page"
	StopTotalReached StopReason = "total_reached"
	StopEmptyPage    StopReason = "empty_page"
	StopFetchError   StopReason = "fetch_error"
	StopWriteError   StopReason = "write_error"
	StopCancelled    StopReason = "cancelled"
)

// Result summarizes a refresh. Err holds the error that ended it early, if any.
type Result struct {
	Pages   int        `json:"pages"`
	Fetched int        `json:"fetched"`
	Merged  int        `json:"merged"`
	Total   int        `json:"total"`
	Stopped StopReason `json:"stopped"`
	Err     error      `json:"-"`
}

// Reconciler refreshes the local cache from the catalog.
type Reconciler struct {
	source   CatalogSource
	store    Store
	pageSize int

	clearBooksOnFullRefresh bool

	progressReporter ProgressReporter
	coverInvalidator CoverInvalidator
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPageSize sets the number of books requested per page.
func WithPageSize(size int) Option {
	return func(r *Reconciler) {
		if size > 0 {
			r.pageSize = size
		}
	}
}

// WithClearBooksOnFullRefresh makes an unfiltered refresh also delete every
// cached book once the first page arrived. Download state of deleted books
// is lost until the next existence check finds the files again.
func WithClearBooksOnFullRefresh(enabled bool) Option {
	return func(r *Reconciler) {
		r.clearBooksOnFullRefresh = enabled
	}
}

// New creates a reconciler.
func New(source CatalogSource, store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:   source,
		store:    store,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetProgressReporter sets the progress reporter for refreshes (optional).
func (r *Reconciler) SetProgressReporter(reporter ProgressReporter) {
	r.progressReporter = reporter
}

// SetCoverInvalidator sets the cover cache invalidator (optional).
func (r *Reconciler) SetCoverInvalidator(invalidator CoverInvalidator) {
	r.coverInvalidator = invalidator
}

// RefreshAll refreshes the whole catalog in the default order.
func (r *Reconciler) RefreshAll(ctx context.Context) Result {
	return r.Refresh(ctx, books.Filter{})
}

// Refresh fetches every page matching filter and merges it into the cache.
//
// An unfiltered refresh first drops all genre relations, once the first page
// was fetched, so relations removed on the server disappear locally. Paging
// stops at a short or empty page, when the server total is reached, on the
// first error, or when ctx is done. Errors are logged and reported in the
// result; already merged books stay.
func (r *Reconciler) Refresh(ctx context.Context, filter books.Filter) Result {
	params := catalog.ListParams{
		Query:          filter.Query,
		Genre:          filter.Genre,
		BookmarkStatus: filter.BookmarkStatus,
		Sort:           books.NormalizeSort(filter.Sort),
		Order:          books.NormalizeOrder(filter.Order),
		Limit:          r.pageSize,
	}
	full := filter.IsUnfiltered()

	r.reportStart()
	log.Printf("Catalog sync: starting (filtered=%t, sort=%s %s)", !full, params.Sort, params.Order)

	var res Result
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			res.Stopped, res.Err = StopCancelled, err
			break
		}

		params.Page = page
		resp, err := r.source.ListBooks(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				res.Stopped, res.Err = StopCancelled, ctx.Err()
			} else {
				res.Stopped, res.Err = StopFetchError, fmt.Errorf("fetch page %d: %w", page, err)
			}
			break
		}
		res.Pages = page
		res.Total = resp.Total
		if page == 1 {
			r.reportTotal(resp.Total)
		}

		if page == 1 && full {
			if err := r.clearForFullRefresh(); err != nil {
				res.Stopped, res.Err = StopWriteError, err
				break
			}
		}

		if len(resp.Books) == 0 {
			res.Stopped = StopEmptyPage
			break
		}

		if err := r.mergePage(resp.Books, &res); err != nil {
			res.Stopped, res.Err = StopWriteError, fmt.Errorf("merge page %d: %w", page, err)
			r.reportPage(page, res)
			break
		}
		r.reportPage(page, res)

		if len(resp.Books) < r.pageSize {
			res.Stopped = StopShortPage
			break
		}
		if resp.Total > 0 && res.Fetched >= resp.Total {
			res.Stopped = StopTotalReached
			break
		}
	}

	if res.Err != nil {
		log.Printf("Catalog sync: stopped after %d pages (%s): %v", res.Pages, res.Stopped, res.Err)
	} else {
		log.Printf("Catalog sync: merged %d of %d books in %d pages (%s)", res.Merged, res.Total, res.Pages, res.Stopped)
	}
	r.reportComplete(res)
	return res
}

// RefreshGenres replaces the cached genre list with the server's.
func (r *Reconciler) RefreshGenres(ctx context.Context) error {
	dtos, err := r.source.ListGenres(ctx)
	if err != nil {
		return fmt.Errorf("fetch genres: %w", err)
	}

	genres := make([]entities.Genre, 0, len(dtos))
	for _, dto := range dtos {
		genres = append(genres, dto.ToEntity())
	}
	if err := r.store.ReplaceGenres(genres); err != nil {
		return fmt.Errorf("store genres: %w", err)
	}
	log.Printf("Catalog sync: refreshed %d genres", len(genres))
	return nil
}

// FetchBook loads a single book from the server into the cache. It is the
// fetch-through path for books missing locally.
func (r *Reconciler) FetchBook(ctx context.Context, id int) (*entities.Book, error) {
	dto, err := r.source.GetBook(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch book %d: %w", id, err)
	}
	if _, err := r.store.MergeBook(dto.ToEntity(), dto.GenreNames()); err != nil {
		return nil, fmt.Errorf("store book %d: %w", id, err)
	}
	return r.store.GetBook(id)
}

func (r *Reconciler) clearForFullRefresh() error {
	if err := r.store.ClearBookGenreRelations(); err != nil {
		return fmt.Errorf("clear genre relations: %w", err)
	}
	if r.clearBooksOnFullRefresh {
		if err := r.store.ClearBooks(); err != nil {
			return fmt.Errorf("clear books: %w", err)
		}
	}
	return nil
}

func (r *Reconciler) mergePage(page []catalog.BookDTO, res *Result) error {
	for _, dto := range page {
		res.Fetched++
		changed, err := r.store.MergeBook(dto.ToEntity(), dto.GenreNames())
		if err != nil {
			return fmt.Errorf("book %d: %w", dto.ID, err)
		}
		res.Merged++
		if changed && r.coverInvalidator != nil {
			if err := r.coverInvalidator.InvalidateCover(dto.ID); err != nil {
				log.Printf("Catalog sync: failed to invalidate cover of book %d: %v", dto.ID, err)
			}
		}
	}
	return nil
}

func (r *Reconciler) reportStart() {
	if r.progressReporter == nil {
		return
	}
	if err := r.progressReporter.StartSync(); err != nil {
		log.Printf("Catalog sync: failed to record start: %v", err)
	}
}

func (r *Reconciler) reportTotal(total int) {
	if r.progressReporter == nil {
		return
	}
	if err := r.progressReporter.SetTotal(total); err != nil {
		log.Printf("Catalog sync: failed to record total: %v", err)
	}
}

func (r *Reconciler) reportPage(page int, res Result) {
	if r.progressReporter == nil {
		return
	}
	if err := r.progressReporter.RecordPage(page, res.Merged, res.Fetched-res.Merged); err != nil {
		log.Printf("Catalog sync: failed to record page %d: %v", page, err)
	}
}

func (r *Reconciler) reportComplete(res Result) {
	if r.progressReporter == nil {
		return
	}
	msg := ""
	if res.Err != nil {
		msg = res.Err.Error()
	}
	if err := r.progressReporter.CompleteSync(string(res.Stopped), msg); err != nil {
		log.Printf("Catalog sync: failed to record completion: %v", err)
	}
}

// IsNotFound reports whether err means the catalog has no such book.
func IsNotFound(err error) bool {
	return errors.Is(err, catalog.ErrNotFound)
}
