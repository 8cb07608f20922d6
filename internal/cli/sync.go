package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrlokans/booklibrary/internal/database/books"
)

// SyncCommand refreshes the local cache from the catalog server.
type SyncCommand struct {
	connection

	Query          string
	Genre          string
	BookmarkStatus string
	Sort           string
	Order          string
	GenresOnly     bool
}

func NewSyncCommand() *SyncCommand {
	return &SyncCommand{}
}

func (cmd *SyncCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)

	cmd.register(fs)
	fs.StringVar(&cmd.Query, "q", "", "Only refresh books matching this search query")
	fs.StringVar(&cmd.Genre, "genre", "", "Only refresh books of this genre")
	fs.StringVar(&cmd.BookmarkStatus, "bookmark-status", "", "Only refresh bookmarked books with this status (reading, paused, finished)")
	fs.StringVar(&cmd.Sort, "sort", books.SortDateAdded, "Sort key sent to the server (date_added, title)")
	fs.StringVar(&cmd.Order, "order", books.OrderDesc, "Sort order (asc, desc)")
	fs.BoolVar(&cmd.GenresOnly, "genres", false, "Only replace the cached genre list")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sync [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Refresh the local book cache from the catalog server.\n\n")
		fmt.Fprintf(os.Stderr, "Without filters the whole catalog is fetched page by page. Cached\n")
		fmt.Fprintf(os.Stderr, "download state is kept for every merged book.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Refresh the whole catalog:\n")
		fmt.Fprintf(os.Stderr, "  %s sync\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Refresh science fiction books only:\n")
		fmt.Fprintf(os.Stderr, "  %s sync -genre \"Science Fiction\"\n", os.Args[0])
	}

	return fs.Parse(args)
}

func (cmd *SyncCommand) filter() books.Filter {
	return books.Filter{
		Query:          cmd.Query,
		Genre:          cmd.Genre,
		BookmarkStatus: cmd.BookmarkStatus,
		Sort:           books.NormalizeSort(cmd.Sort),
		Order:          books.NormalizeOrder(cmd.Order),
	}
}

func (cmd *SyncCommand) Run() error {
	fmt.Println("Catalog Sync")
	fmt.Println("============")

	app, err := cmd.openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Server: %s\n", app.Catalog.BaseURL())

	fmt.Println("\nRefreshing genres...")
	if err := app.Reconciler.RefreshGenres(ctx); err != nil {
		if cmd.GenresOnly {
			return fmt.Errorf("failed to refresh genres: %w", err)
		}
		fmt.Printf("  [ERROR] %v\n", err)
	} else {
		genres, _ := app.Library.GetGenres(ctx)
		fmt.Printf("  [OK] %d genres\n", len(genres))
	}
	if cmd.GenresOnly {
		return nil
	}

	filter := cmd.filter()
	if filter.IsUnfiltered() {
		fmt.Println("\nRefreshing the whole catalog...")
	} else {
		fmt.Printf("\nRefreshing books (query=%q genre=%q bookmark=%q)...\n", filter.Query, filter.Genre, filter.BookmarkStatus)
	}

	res := app.Reconciler.Refresh(ctx, filter)

	fmt.Println("\n=== Sync Summary ===")
	fmt.Printf("Pages fetched: %d\n", res.Pages)
	fmt.Printf("Books merged: %d/%d\n", res.Merged, res.Fetched)
	if res.Total > 0 {
		fmt.Printf("Server total: %d\n", res.Total)
	}
	fmt.Printf("Stopped: %s\n", res.Stopped)

	if res.Err != nil {
		return fmt.Errorf("sync ended early: %w", res.Err)
	}

	fmt.Println("\nSync complete!")
	return nil
}
