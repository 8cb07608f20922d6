package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booklibrary/internal/entities"
)

// ReadingStore is the part of the library the reader endpoints use.
type ReadingStore interface {
	GetReaderState(ctx context.Context, bookID int) (entities.ReaderState, error)
	SaveReaderState(ctx context.Context, state entities.ReaderState) (entities.ReaderState, error)
	SaveReadingPosition(ctx context.Context, position entities.ReadingPosition) (*entities.ReadingPosition, error)
	GetReadingPosition(ctx context.Context, bookID int) (*entities.ReadingPosition, error)
	UpdateProgress(ctx context.Context, bookID int, progress float64) error
	ClearReadingPosition(ctx context.Context, bookID int) error
	ListReadingPositions(ctx context.Context) ([]entities.ReadingPosition, error)
}

// ReadingController stores reading positions and reader preferences.
type ReadingController struct {
	reading ReadingStore
}

func NewReadingController(reading ReadingStore) *ReadingController {
	return &ReadingController{reading: reading}
}

// GetPosition handles GET /api/books/:id/position
func (rc *ReadingController) GetPosition(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	position, err := rc.reading.GetReadingPosition(c.Request.Context(), bookID)
	if err != nil {
		respondInternalError(c, err, "get reading position")
		return
	}
	if position == nil {
		respondNotFound(c, "reading position")
		return
	}
	c.JSON(http.StatusOK, position)
}

// SavePosition handles PUT /api/books/:id/position
func (rc *ReadingController) SavePosition(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var position entities.ReadingPosition
	if err := c.ShouldBindJSON(&position); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	position.BookID = bookID

	saved, err := rc.reading.SaveReadingPosition(c.Request.Context(), position)
	if err != nil {
		respondInternalError(c, err, "save reading position")
		return
	}
	c.JSON(http.StatusOK, saved)
}

// ProgressRequest updates the overall progress of a book.
type ProgressRequest struct {
	Progress *float64 `json:"progress"`
}

// UpdateProgress handles PATCH /api/books/:id/progress
func (rc *ReadingController) UpdateProgress(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Progress == nil {
		respondBadRequest(c, "progress is required")
		return
	}

	if err := rc.reading.UpdateProgress(c.Request.Context(), bookID, *req.Progress); err != nil {
		respondInternalError(c, err, "update progress")
		return
	}
	respondSuccess(c, "progress updated")
}

// ClearPosition handles DELETE /api/books/:id/position
func (rc *ReadingController) ClearPosition(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := rc.reading.ClearReadingPosition(c.Request.Context(), bookID); err != nil {
		respondInternalError(c, err, "clear reading position")
		return
	}
	respondSuccess(c, "reading position cleared")
}

// ListPositions handles GET /api/positions
func (rc *ReadingController) ListPositions(c *gin.Context) {
	positions, err := rc.reading.ListReadingPositions(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "list reading positions")
		return
	}
	if positions == nil {
		positions = []entities.ReadingPosition{}
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

// GetReaderState handles GET /api/books/:id/reader-state
func (rc *ReadingController) GetReaderState(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	state, err := rc.reading.GetReaderState(c.Request.Context(), bookID)
	if err != nil {
		respondInternalError(c, err, "get reader state")
		return
	}
	c.JSON(http.StatusOK, state)
}

// SaveReaderState handles PUT /api/books/:id/reader-state
// Out-of-range values are clamped.
func (rc *ReadingController) SaveReaderState(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var state entities.ReaderState
	if err := c.ShouldBindJSON(&state); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	state.BookID = bookID

	saved, err := rc.reading.SaveReaderState(c.Request.Context(), state)
	if err != nil {
		respondInternalError(c, err, "save reader state")
		return
	}
	c.JSON(http.StatusOK, saved)
}
