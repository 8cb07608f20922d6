package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/booklibrary/internal/reconcile"
)

// Syncer runs a full reconciliation of the cache with the catalog server.
type Syncer interface {
	RefreshGenres(ctx context.Context) error
	RefreshAll(ctx context.Context) reconcile.Result
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a five-field cron expression.
func ValidateSchedule(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// NextRunTime returns when a schedule fires next after from.
func NextRunTime(schedule string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// CatalogSyncScheduler refreshes genres and the whole catalog periodically.
type CatalogSyncScheduler struct {
	syncer   Syncer
	schedule string
	timeout  time.Duration

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	isSyncing  bool
	lastResult *reconcile.Result
	cancelFunc context.CancelFunc
	syncs      sync.WaitGroup
}

// NewCatalogSyncScheduler creates a scheduler for the given cron schedule.
func NewCatalogSyncScheduler(syncer Syncer, schedule string) *CatalogSyncScheduler {
	return &CatalogSyncScheduler{
		syncer:   syncer,
		schedule: schedule,
		timeout:  30 * time.Minute,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start schedules the sync job. It stops when ctx is done.
func (s *CatalogSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if err := ValidateSchedule(s.schedule); err != nil {
		return err
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.runSync()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	nextRun, _ := NextRunTime(s.schedule, time.Now())
	log.Printf("Catalog sync scheduler: started with schedule '%s'. Next run: %v", s.schedule, nextRun)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for a running sync and stops the scheduler.
func (s *CatalogSyncScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancelFunc
	s.cancelFunc = nil
	s.mu.Unlock()

	// A running job takes the lock when it finishes.
	ctx := s.cron.Stop()
	<-ctx.Done()

	if cancel != nil {
		cancel()
	}
	log.Printf("Catalog sync scheduler: stopped")
}

// RunNow triggers an immediate sync in the background. It is skipped when a
// sync is already running.
func (s *CatalogSyncScheduler) RunNow() {
	s.syncs.Add(1)
	go func() {
		defer s.syncs.Done()
		s.runSync()
	}()
}

// Wait blocks until syncs started with RunNow have ended.
func (s *CatalogSyncScheduler) Wait() {
	s.syncs.Wait()
}

func (s *CatalogSyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *CatalogSyncScheduler) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSyncing
}

// LastResult returns the outcome of the latest finished sync, if any.
func (s *CatalogSyncScheduler) LastResult() *reconcile.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastResult == nil {
		return nil
	}
	res := *s.lastResult
	return &res
}

// GetNextRunTime returns when the next sync will occur.
func (s *CatalogSyncScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

func (s *CatalogSyncScheduler) runSync() {
	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		log.Printf("Catalog sync: skipped (already syncing)")
		return
	}
	s.isSyncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	log.Printf("Catalog sync: starting scheduled refresh")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.syncer.RefreshGenres(ctx); err != nil {
		log.Printf("Catalog sync: failed to refresh genres: %v", err)
	}

	res := s.syncer.RefreshAll(ctx)

	s.mu.Lock()
	s.lastResult = &res
	s.mu.Unlock()

	if res.Err != nil {
		log.Printf("Catalog sync: failed after %d pages: %v", res.Pages, res.Err)
		return
	}
	log.Printf("Catalog sync: merged %d books in %v", res.Merged, time.Since(startTime).Round(time.Millisecond))
}
