package tasks

import (
	"sync/atomic"
	"time"

	"github.com/mikestefanello/backlite"
)

// Config holds configuration for the task queue.
type Config struct {
	// Workers is the number of concurrent task workers. Default: 2
	Workers int

	// MaxRetries is the number of attempts of a failed download. Default: 3
	MaxRetries int

	// RetryDelay is the backoff between download attempts. Default: 1m
	RetryDelay time.Duration

	// TaskTimeout bounds a single download or refresh. Default: 30m
	TaskTimeout time.Duration

	// ReleaseAfter is when stuck tasks are released back to the queue. Default: 45m
	ReleaseAfter time.Duration

	// CleanupInterval is how often finished tasks are cleaned up. Default: 1h
	CleanupInterval time.Duration

	// RetentionDuration is how long finished tasks are kept. Default: 24h
	RetentionDuration time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           2,
		MaxRetries:        3,
		RetryDelay:        1 * time.Minute,
		TaskTimeout:       30 * time.Minute,
		ReleaseAfter:      45 * time.Minute,
		CleanupInterval:   1 * time.Hour,
		RetentionDuration: 24 * time.Hour,
	}
}

var queueConfig atomic.Pointer[Config]

// configure sets the retry and retention settings used by the queue
// configurations of downloads and refreshes.
func configure(cfg Config) {
	queueConfig.Store(&cfg)
}

func current() Config {
	if cfg := queueConfig.Load(); cfg != nil {
		return *cfg
	}
	return DefaultConfig()
}

// retention keeps finished tasks for d, with payloads only for failures.
func retention(d time.Duration) *backlite.Retention {
	return &backlite.Retention{
		Duration:   d,
		OnlyFailed: false,
		Data:       &backlite.RetainData{OnlyFailed: true},
	}
}
