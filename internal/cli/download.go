package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mrlokans/booklibrary/internal/downloads"
)

const progressBarWidth = 40

// DownloadCommand downloads the EPUB of a book into local storage.
type DownloadCommand struct {
	connection

	BookID int
	Force  bool
}

func NewDownloadCommand() *DownloadCommand {
	return &DownloadCommand{}
}

func (cmd *DownloadCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)

	cmd.register(fs)
	fs.IntVar(&cmd.BookID, "id", 0, "ID of the book to download (required)")
	fs.BoolVar(&cmd.Force, "force", false, "Download again even when a stored copy exists")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s download -id <book-id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Download a book's EPUB into the downloads directory.\n\n")
		fmt.Fprintf(os.Stderr, "A stored copy that still exists is reused unless -force is given.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.BookID <= 0 {
		return fmt.Errorf("required flag -id not provided")
	}

	return nil
}

func (cmd *DownloadCommand) Run() error {
	fmt.Println("Book Download")
	fmt.Println("=============")

	app, err := cmd.openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd.Force {
		if err := app.Downloads.Discard(ctx, cmd.BookID); err != nil {
			return fmt.Errorf("failed to discard stored copy: %w", err)
		}
	}

	var last downloads.Progress
	for p := range app.Downloads.Stream(ctx, cmd.BookID) {
		renderProgress(os.Stdout, p)
		last = p
	}
	fmt.Println()

	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("download cancelled")
	case last.Failed():
		return fmt.Errorf("download failed: %s", last.Error)
	case last.AlreadyDownloaded:
		fmt.Printf("Already downloaded: %s\n", last.Location)
	case last.Complete:
		fmt.Printf("Saved to: %s\n", last.Location)
	}
	if path := app.Downloads.LocalPath(ctx, last.Location); last.Complete && path != last.Location {
		fmt.Printf("File: %s\n", path)
	}
	return nil
}

// renderProgress redraws a one-line text progress bar.
func renderProgress(w io.Writer, p downloads.Progress) {
	switch {
	case p.Failed():
		fmt.Fprintf(w, "\r[ERROR] %s", p.Error)
	case p.Indeterminate:
		fmt.Fprintf(w, "\rDownloading... %.2f MB", float64(p.BytesWritten)/1024/1024)
	case p.Loading && p.Fraction == 0:
		fmt.Fprint(w, "\rConnecting...")
	default:
		fmt.Fprintf(w, "\r%s", progressBar(p.Fraction))
	}
}

func progressBar(fraction float64) string {
	filled := int(fraction * progressBarWidth)
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	if filled < 0 {
		filled = 0
	}
	return fmt.Sprintf("[%s%s] %3.0f%%",
		strings.Repeat("#", filled), strings.Repeat(".", progressBarWidth-filled), fraction*100)
}
