package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"
)

// StatusCommand shows the state of the local cache, or of one book.
type StatusCommand struct {
	connection

	BookID int
	Server bool
}

func NewStatusCommand() *StatusCommand {
	return &StatusCommand{}
}

func (cmd *StatusCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)

	cmd.register(fs)
	fs.IntVar(&cmd.BookID, "id", 0, "Show the download status of this book")
	fs.BoolVar(&cmd.Server, "server", false, "Print the server's debug listing of its books")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s status [-id <book-id> | -server] [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Show cache and sync status, or whether one book is stored locally.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

func (cmd *StatusCommand) Run() error {
	app, err := cmd.openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()

	if cmd.Server {
		raw, err := app.Catalog.DebugBooks(ctx)
		if err != nil {
			return err
		}
		var out bytes.Buffer
		if err := json.Indent(&out, raw, "", "  "); err != nil {
			out.Reset()
			out.Write(raw)
		}
		fmt.Println(out.String())
		return nil
	}

	if cmd.BookID > 0 {
		book, err := app.Library.GetBook(ctx, cmd.BookID)
		if err != nil {
			return fmt.Errorf("failed to load book %d: %w", cmd.BookID, err)
		}
		// The existence check also repairs a stale cache entry
		downloaded, err := app.Library.IsBookDownloaded(ctx, cmd.BookID)
		if err != nil {
			return fmt.Errorf("failed to check book %d: %w", cmd.BookID, err)
		}

		fmt.Printf("Book %d: %s\n", book.ID, book.Title)
		if downloaded {
			if fresh, err := app.Library.GetBook(ctx, cmd.BookID); err == nil {
				book = fresh
			}
			fmt.Printf("Downloaded: yes (%s)\n", book.LocalFilePath)
		} else {
			fmt.Println("Downloaded: no")
		}
		if book.Bookmark != nil {
			fmt.Printf("Bookmark: %s, chapter %d\n", book.Bookmark.Status, book.Bookmark.CurrentChapter)
		}
		return nil
	}

	count, err := app.Books.Count()
	if err != nil {
		return fmt.Errorf("failed to count books: %w", err)
	}
	downloaded, err := app.Books.ListDownloaded()
	if err != nil {
		return fmt.Errorf("failed to list downloaded books: %w", err)
	}
	stored, err := app.Storage.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored files: %w", err)
	}

	fmt.Println("Local Cache")
	fmt.Println("===========")
	fmt.Printf("Database: %s\n", app.Config.Database.Path)
	fmt.Printf("Server: %s\n", app.Catalog.BaseURL())
	fmt.Printf("Cached books: %d\n", count)
	fmt.Printf("Downloaded books: %d\n", len(downloaded))
	fmt.Printf("Stored files: %d (%s)\n", len(stored), app.Config.Downloads.DownloadsPath())

	progress, err := app.SyncProgress.GetSyncProgress()
	if err != nil {
		return fmt.Errorf("failed to read sync progress: %w", err)
	}
	fmt.Println("\nLast Sync")
	fmt.Println("=========")
	if progress == nil {
		fmt.Println("Never synced")
		return nil
	}
	fmt.Printf("Status: %s\n", progress.Status)
	fmt.Printf("Started: %s\n", progress.StartedAt.Format(time.DateTime))
	if progress.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", progress.CompletedAt.Format(time.DateTime))
	}
	fmt.Printf("Pages: %d, books processed: %d, failed: %d\n", progress.CurrentPage, progress.Processed, progress.Failed)
	if progress.StopReason != "" {
		fmt.Printf("Stopped: %s\n", progress.StopReason)
	}
	if progress.Error != "" {
		fmt.Printf("Error: %s\n", progress.Error)
	}
	return nil
}
