package tasks

import (
	"context"
	"fmt"
	"log"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/booklibrary/internal/downloads"
)

// Downloader stores a book's file locally.
type Downloader interface {
	Download(ctx context.Context, bookID int, report downloads.ProgressFunc) error
}

// DownloadBookTask downloads the EPUB of one book.
type DownloadBookTask struct {
	BookID int `json:"book_id"`
}

// Config returns the queue configuration for downloads. A failed download
// leaves nothing behind, so it is safe to retry.
func (t DownloadBookTask) Config() backlite.QueueConfig {
	cfg := current()
	return backlite.QueueConfig{
		Name:        "download_book",
		MaxAttempts: cfg.MaxRetries,
		Backoff:     cfg.RetryDelay,
		Timeout:     cfg.TaskTimeout,
		Retention:   retention(cfg.RetentionDuration),
	}
}

// DownloadBookProcessor creates a processor function for DownloadBookTask.
func DownloadBookProcessor(downloader Downloader) backlite.QueueProcessor[DownloadBookTask] {
	return func(ctx context.Context, task DownloadBookTask) error {
		if downloader == nil {
			return fmt.Errorf("downloader not configured")
		}
		if task.BookID <= 0 {
			return fmt.Errorf("invalid book id %d", task.BookID)
		}

		logger := newProgressLogger(task.BookID)
		if err := downloader.Download(ctx, task.BookID, logger.report); err != nil {
			return fmt.Errorf("download book %d: %w", task.BookID, err)
		}
		return nil
	}
}

// NewDownloadBookQueue creates a backlite queue for downloads.
func NewDownloadBookQueue(downloader Downloader) backlite.Queue {
	return backlite.NewQueue(DownloadBookProcessor(downloader))
}

const indeterminateLogStep = 1 << 20

// progressLogger logs a download every 10%, or every MiB when the size is
// unknown.
type progressLogger struct {
	bookID    int
	lastStep  int
	lastBytes int64
	logf      func(format string, args ...any)
}

func newProgressLogger(bookID int) *progressLogger {
	return &progressLogger{bookID: bookID, lastStep: -1, logf: log.Printf}
}

func (l *progressLogger) report(p downloads.Progress) {
	switch {
	case p.Failed():
		l.logf("[TASK ERROR] Download of book %d failed: %s", l.bookID, p.Error)
	case p.AlreadyDownloaded:
		l.logf("[TASK] Book %d is already stored at %s", l.bookID, p.Location)
	case p.Complete:
		l.logf("[TASK] Book %d downloaded to %s (%d bytes)", l.bookID, p.Location, p.BytesWritten)
	case p.Indeterminate:
		if p.BytesWritten-l.lastBytes >= indeterminateLogStep {
			l.lastBytes = p.BytesWritten
			l.logf("[TASK] Downloading book %d: %d bytes", l.bookID, p.BytesWritten)
		}
	default:
		step := int(p.Fraction * 10)
		if step > l.lastStep {
			l.lastStep = step
			l.logf("[TASK] Downloading book %d: %d%%", l.bookID, step*10)
		}
	}
}
