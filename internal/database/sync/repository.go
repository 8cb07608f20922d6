// Package sync provides database operations for reconciliation progress tracking.
//
// This package implements the ProgressReporter interface used by the catalog
// reconciler.
//
// # Interface Implementation
//
//	var _ reconcile.ProgressReporter = (*Repository)(nil)
//
// # Usage
//
//	repo := sync.NewRepositoryWithType(db, entities.SyncTypeCatalog)
//	err := repo.StartSync()
package sync

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/booklibrary/internal/entities"
)

// staleAfter is how long a running sync may go without an update before it
// is considered interrupted.
const staleAfter = 10 * time.Minute

// Repository handles all sync progress database operations.
type Repository struct {
	db       *gorm.DB
	syncType entities.SyncType
}

// NewRepository creates a sync repository tracking catalog reconciliation.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, syncType: entities.SyncTypeCatalog}
}

// NewRepositoryWithType creates a sync repository for a specific sync type.
func NewRepositoryWithType(db *gorm.DB, syncType entities.SyncType) *Repository {
	return &Repository{db: db, syncType: syncType}
}

// GetSyncProgress retrieves the sync progress for the configured sync type.
func (r *Repository) GetSyncProgress() (*entities.SyncProgress, error) {
	var progress entities.SyncProgress
	err := r.db.Where("sync_type = ?", r.syncType).First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// StartSync creates or resets the progress record. The total is unknown until
// the server reports it.
func (r *Repository) StartSync() error {
	var progress entities.SyncProgress
	result := r.db.Where("sync_type = ?", r.syncType).First(&progress)

	now := time.Now()
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		progress = entities.SyncProgress{
			SyncType:  r.syncType,
			Status:    entities.SyncStatusRunning,
			StartedAt: now,
			UpdatedAt: now,
		}
		return r.db.Create(&progress).Error
	} else if result.Error != nil {
		return result.Error
	}

	progress.Status = entities.SyncStatusRunning
	progress.TotalItems = 0
	progress.Processed = 0
	progress.Failed = 0
	progress.CurrentPage = 0
	progress.StopReason = ""
	progress.Error = ""
	progress.StartedAt = now
	progress.UpdatedAt = now
	progress.CompletedAt = nil

	return r.db.Save(&progress).Error
}

// SetTotal records the number of items the server reported.
func (r *Repository) SetTotal(total int) error {
	return r.update(map[string]any{"total_items": total})
}

// RecordPage records the page just merged and the running counters.
func (r *Repository) RecordPage(page, processed, failed int) error {
	return r.update(map[string]any{
		"current_page": page,
		"processed":    processed,
		"failed":       failed,
	})
}

// CompleteSync marks the run as finished. A non-empty error message marks it failed.
func (r *Repository) CompleteSync(stopReason, errorMsg string) error {
	now := time.Now()
	status := entities.SyncStatusCompleted
	if errorMsg != "" {
		status = entities.SyncStatusFailed
	}
	return r.update(map[string]any{
		"status":       status,
		"stop_reason":  stopReason,
		"error":        errorMsg,
		"completed_at": now,
	})
}

// IsSyncRunning checks if a sync is currently in progress.
// A running sync that was not updated recently is marked as interrupted.
func (r *Repository) IsSyncRunning() (bool, error) {
	var progress entities.SyncProgress
	err := r.db.Where("sync_type = ? AND status = ?", r.syncType, entities.SyncStatusRunning).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if progress.UpdatedAt.Before(time.Now().Add(-staleAfter)) {
		_ = r.CompleteSync("interrupted", "sync was interrupted")
		return false, nil
	}
	return true, nil
}

func (r *Repository) update(fields map[string]any) error {
	fields["updated_at"] = time.Now()
	return r.db.Model(&entities.SyncProgress{}).
		Where("sync_type = ?", r.syncType).
		Updates(fields).Error
}
