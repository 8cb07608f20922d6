package catalog

import (
	"encoding/json"
	"strings"

	"github.com/mrlokans/booklibrary/internal/entities"
)

// BookPage is one page of the server's book listing.
type BookPage struct {
	Books []BookDTO `json:"books"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// BookDTO is a book as served by the catalog.
type BookDTO struct {
	ID           int          `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	ChapterCount int          `json:"chapter_count"`
	CoverURL     string       `json:"cover_url"`
	EpubURL      string       `json:"epub_url"`
	Language     string       `json:"language"`
	Translator   string       `json:"translator"`
	Status       string       `json:"status"`
	DateAdded    string       `json:"date_added"`
	Genres       []string     `json:"genres"`
	Bookmark     *BookmarkDTO `json:"bookmark,omitempty"`
}

// BookmarkDTO is the server's view of the user's bookmark on a book.
type BookmarkDTO struct {
	Status         string `json:"status"`
	CurrentChapter int    `json:"current_chapter"`
	LastUpdated    string `json:"last_updated"`
}

// GenreDTO is a genre with its book count.
type GenreDTO struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// NoteDTO is a note as served by the catalog.
type NoteDTO struct {
	ID        int    `json:"id"`
	BookID    int    `json:"book_id"`
	Chapter   *int   `json:"chapter,omitempty"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type CreateBookmarkRequest struct {
	BookID         int    `json:"book_id"`
	Status         string `json:"status"`
	CurrentChapter int    `json:"current_chapter"`
}

type DeleteBookmarkRequest struct {
	BookID int `json:"book_id"`
}

type CreateNoteRequest struct {
	BookID  int    `json:"book_id"`
	Chapter *int   `json:"chapter,omitempty"`
	Text    string `json:"text"`
}

type UpdateNoteRequest struct {
	Text string `json:"text"`
}

// APIResponse is the envelope used by mutating endpoints.
type APIResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ToEntity maps a served book to a cache row with no local download state.
// Genres and the bookmark are not part of the row.
func (d BookDTO) ToEntity() entities.Book {
	return entities.Book{
		ID:           d.ID,
		Title:        d.Title,
		Description:  d.Description,
		ChapterCount: d.ChapterCount,
		CoverURL:     d.CoverURL,
		EpubURL:      d.EpubURL,
		Language:     d.Language,
		Translator:   d.Translator,
		Status:       d.Status,
		DateAdded:    d.DateAdded,
	}
}

// GenreNames returns the trimmed, non-blank genre names of the book.
func (d BookDTO) GenreNames() []string {
	names := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		if g = strings.TrimSpace(g); g != "" {
			names = append(names, g)
		}
	}
	return names
}

// ToEntity maps a served genre to a cache row.
func (g GenreDTO) ToEntity() entities.Genre {
	return entities.Genre{Name: strings.TrimSpace(g.Name), Count: g.Count}
}

// ToEntity maps a served note to a cache row.
func (n NoteDTO) ToEntity() entities.Note {
	return entities.Note{
		ID:        n.ID,
		BookID:    n.BookID,
		Chapter:   n.Chapter,
		Text:      n.Text,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}
