package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/library"
)

// NoteStore is the part of the library the note endpoints use.
type NoteStore interface {
	ListNotes(ctx context.Context, bookID int) ([]entities.Note, error)
	ListChapterNotes(ctx context.Context, bookID, chapter int) ([]entities.Note, error)
	CreateNote(ctx context.Context, bookID int, chapter *int, text string) (*entities.Note, error)
	UpdateNote(ctx context.Context, id int, text string) (*entities.Note, error)
	DeleteNote(ctx context.Context, id int) error
}

type NotesController struct {
	notes NoteStore
}

func NewNotesController(notes NoteStore) *NotesController {
	return &NotesController{notes: notes}
}

// NoteRequest creates or edits a note.
type NoteRequest struct {
	Text    string `json:"text"`
	Chapter *int   `json:"chapter,omitempty"`
}

// ListNotes handles GET /api/books/:id/notes?chapter=
// Without a chapter the notes are refreshed from the catalog first.
func (nc *NotesController) ListNotes(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	chapter, ok := parseOptionalIntQuery(c, "chapter")
	if !ok {
		return
	}

	var (
		notes []entities.Note
		err   error
	)
	if chapter != nil {
		notes, err = nc.notes.ListChapterNotes(c.Request.Context(), bookID, *chapter)
	} else {
		notes, err = nc.notes.ListNotes(c.Request.Context(), bookID)
	}
	if err != nil {
		respondInternalError(c, err, "list notes")
		return
	}
	if notes == nil {
		notes = []entities.Note{}
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes, "count": len(notes)})
}

// CreateNote handles POST /api/books/:id/notes
func (nc *NotesController) CreateNote(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	note, err := nc.notes.CreateNote(c.Request.Context(), bookID, req.Chapter, req.Text)
	if err != nil {
		nc.respondNoteError(c, err)
		return
	}
	respondCreated(c, note)
}

// UpdateNote handles PUT /api/notes/:id
func (nc *NotesController) UpdateNote(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	note, err := nc.notes.UpdateNote(c.Request.Context(), id, req.Text)
	if err != nil {
		nc.respondNoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/:id
func (nc *NotesController) DeleteNote(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := nc.notes.DeleteNote(c.Request.Context(), id); err != nil {
		nc.respondNoteError(c, err)
		return
	}
	respondSuccess(c, "note deleted")
}

func (nc *NotesController) respondNoteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, library.ErrEmptyNote):
		respondBadRequest(c, err.Error())
	case errors.Is(err, library.ErrNoteNotFound):
		respondNotFound(c, "note")
	default:
		respondBadGateway(c, err)
	}
}
