package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/reconcile"
)

// CatalogRefresher reconciles the local cache with the catalog server.
type CatalogRefresher interface {
	Refresh(ctx context.Context, filter books.Filter) reconcile.Result
	RefreshGenres(ctx context.Context) error
}

// RefreshCatalogTask reconciles the books matching a filter. An empty filter
// refreshes the whole catalog.
type RefreshCatalogTask struct {
	Query          string `json:"query,omitempty"`
	Genre          string `json:"genre,omitempty"`
	BookmarkStatus string `json:"bookmark_status,omitempty"`
	Sort           string `json:"sort,omitempty"`
	Order          string `json:"order,omitempty"`
}

func (t RefreshCatalogTask) Filter() books.Filter {
	return books.Filter{
		Query:          t.Query,
		Genre:          t.Genre,
		BookmarkStatus: t.BookmarkStatus,
		Sort:           t.Sort,
		Order:          t.Order,
	}
}

// Config returns the queue configuration for catalog refreshes. A refresh is
// not retried; the next scheduled run picks up where it failed.
func (t RefreshCatalogTask) Config() backlite.QueueConfig {
	cfg := current()
	return backlite.QueueConfig{
		Name:        "refresh_catalog",
		MaxAttempts: 1,
		Backoff:     time.Minute,
		Timeout:     cfg.TaskTimeout,
		Retention:   retention(cfg.RetentionDuration),
	}
}

// RefreshCatalogProcessor creates a processor function for RefreshCatalogTask.
func RefreshCatalogProcessor(refresher CatalogRefresher) backlite.QueueProcessor[RefreshCatalogTask] {
	return func(ctx context.Context, task RefreshCatalogTask) error {
		if refresher == nil {
			return fmt.Errorf("catalog refresher not configured")
		}

		res := refresher.Refresh(ctx, task.Filter())
		if res.Err != nil {
			return fmt.Errorf("refresh catalog: %w", res.Err)
		}

		log.Printf("[TASK] Catalog refresh finished: %d books merged from %d pages (%s)",
			res.Merged, res.Pages, res.Stopped)
		return nil
	}
}

// NewRefreshCatalogQueue creates a backlite queue for catalog refreshes.
func NewRefreshCatalogQueue(refresher CatalogRefresher) backlite.Queue {
	return backlite.NewQueue(RefreshCatalogProcessor(refresher))
}

// RefreshGenresTask replaces the cached genre list.
type RefreshGenresTask struct{}

func (t RefreshGenresTask) Config() backlite.QueueConfig {
	cfg := current()
	return backlite.QueueConfig{
		Name:        "refresh_genres",
		MaxAttempts: cfg.MaxRetries,
		Backoff:     cfg.RetryDelay,
		Timeout:     time.Minute,
		Retention:   retention(cfg.RetentionDuration),
	}
}

// RefreshGenresProcessor creates a processor function for RefreshGenresTask.
func RefreshGenresProcessor(refresher CatalogRefresher) backlite.QueueProcessor[RefreshGenresTask] {
	return func(ctx context.Context, task RefreshGenresTask) error {
		if refresher == nil {
			return fmt.Errorf("catalog refresher not configured")
		}
		if err := refresher.RefreshGenres(ctx); err != nil {
			return fmt.Errorf("refresh genres: %w", err)
		}
		log.Printf("[TASK] Genres refreshed")
		return nil
	}
}

// NewRefreshGenresQueue creates a backlite queue for genre refreshes.
func NewRefreshGenresQueue(refresher CatalogRefresher) backlite.Queue {
	return backlite.NewQueue(RefreshGenresProcessor(refresher))
}
