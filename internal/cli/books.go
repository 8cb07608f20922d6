package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mrlokans/booklibrary/internal/database/books"
	"github.com/mrlokans/booklibrary/internal/library"
)

// BooksCommand lists cached books.
type BooksCommand struct {
	connection

	Query          string
	Genre          string
	BookmarkStatus string
	Sort           string
	Order          string
	Downloaded     bool
}

func NewBooksCommand() *BooksCommand {
	return &BooksCommand{}
}

func (cmd *BooksCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("books", flag.ExitOnError)

	cmd.register(fs)
	fs.StringVar(&cmd.Query, "q", "", "Search titles and descriptions")
	fs.StringVar(&cmd.Genre, "genre", "", "Only list books of this genre")
	fs.StringVar(&cmd.BookmarkStatus, "bookmark-status", "", "Only list bookmarked books with this status")
	fs.StringVar(&cmd.Sort, "sort", books.SortDateAdded, "Sort by date_added or title")
	fs.StringVar(&cmd.Order, "order", books.OrderDesc, "Sort order (asc, desc)")
	fs.BoolVar(&cmd.Downloaded, "downloaded", false, "Only list downloaded books")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s books [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "List books from the local cache without contacting the server.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

func (cmd *BooksCommand) Run() error {
	app, err := cmd.openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	list, err := app.Library.GetBooks(context.Background(), books.Filter{
		Query:          cmd.Query,
		Genre:          cmd.Genre,
		BookmarkStatus: cmd.BookmarkStatus,
		Sort:           books.NormalizeSort(cmd.Sort),
		Order:          books.NormalizeOrder(cmd.Order),
	})
	if err != nil {
		return fmt.Errorf("failed to list books: %w", err)
	}

	if cmd.Downloaded {
		kept := list[:0]
		for _, b := range list {
			if b.IsDownloaded {
				kept = append(kept, b)
			}
		}
		list = kept
	}

	if len(list) == 0 {
		fmt.Println("No cached books found. Run 'sync' to load the catalog.")
		return nil
	}

	printBooks(list)
	fmt.Printf("\n%d books\n", len(list))
	return nil
}

func printBooks(list []library.Book) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tGENRES\tBOOKMARK\tDOWNLOADED")
	for _, b := range list {
		bookmark := "-"
		if b.Bookmark != nil {
			bookmark = string(b.Bookmark.Status)
		}
		downloaded := "no"
		if b.IsDownloaded {
			downloaded = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", b.ID, b.Title, strings.Join(b.Genres, ", "), bookmark, downloaded)
	}
	w.Flush()
}
