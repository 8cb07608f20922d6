package http

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booklibrary/internal/presentation"
)

// CatalogController drives the catalog screen of the caller's session.
type CatalogController struct {
	screens ScreenResolver
}

func NewCatalogController(screens ScreenResolver) *CatalogController {
	return &CatalogController{screens: screens}
}

// KeyRequest selects the search, genre filter and sort of the catalog.
type KeyRequest struct {
	Query string `json:"query"`
	Genre string `json:"genre"`
	Sort  string `json:"sort"`
	Order string `json:"order"`
}

// GetSnapshot handles GET /api/catalog
func (cc *CatalogController) GetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, cc.screens.Screen(c).Catalog.Snapshot())
}

// SetKey handles PUT /api/catalog/query
func (cc *CatalogController) SetKey(c *gin.Context) {
	var req KeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	state := cc.screens.Screen(c).Catalog
	state.SetKey(c.Request.Context(), presentation.Key{
		Query: req.Query,
		Genre: req.Genre,
		Sort:  req.Sort,
		Order: req.Order,
	})
	c.JSON(http.StatusOK, state.Snapshot())
}

// Refresh handles POST /api/catalog/refresh
func (cc *CatalogController) Refresh(c *gin.Context) {
	state := cc.screens.Screen(c).Catalog
	state.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, state.Snapshot())
}

// LoadFromAPI handles POST /api/catalog/load
func (cc *CatalogController) LoadFromAPI(c *gin.Context) {
	state := cc.screens.Screen(c).Catalog
	state.LoadFromAPI(c.Request.Context())
	c.JSON(http.StatusOK, state.Snapshot())
}

// ClearError handles DELETE /api/catalog/error
func (cc *CatalogController) ClearError(c *gin.Context) {
	state := cc.screens.Screen(c).Catalog
	state.ClearError()
	c.JSON(http.StatusOK, state.Snapshot())
}

// BookAction handles POST /api/books/:id/action
// Opens a stored book or starts its download; progress arrives on the
// events stream.
func (cc *CatalogController) BookAction(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	state := cc.screens.Screen(c).Catalog
	state.HandleBookAction(c.Request.Context(), id)
	c.JSON(http.StatusAccepted, state.Snapshot())
}

// CancelDownload handles DELETE /api/books/:id/download
func (cc *CatalogController) CancelDownload(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	cc.screens.Screen(c).Catalog.CancelDownload(id)
	respondSuccess(c, "download cancelled")
}

// ToggleBookmark handles POST /api/books/:id/bookmark/toggle
func (cc *CatalogController) ToggleBookmark(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	state := cc.screens.Screen(c).Catalog
	state.ToggleBookmark(c.Request.Context(), id)
	c.JSON(http.StatusOK, state.Snapshot())
}

// Events handles GET /api/catalog/events
// Streams catalog snapshots and open_file events as server-sent events.
func (cc *CatalogController) Events(c *gin.Context) {
	state := cc.screens.Screen(c).Catalog
	updates, unsubscribe := state.Subscribe()
	defer unsubscribe()

	streamEvents(c, updates, state.OpenFileEvents())
}

// streamEvents relays snapshots and open-file events until the client
// disconnects or the subscription ends.
func streamEvents[T any](c *gin.Context, updates <-chan T, openFile <-chan string) {
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", snap)
			return true
		case path := <-openFile:
			c.SSEvent("open_file", gin.H{"file_path": path})
			return true
		}
	})
}
