package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booklibrary/internal/sessions"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(sessions.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies))
	}
	if cfg.Sessions != nil {
		router.Use(cfg.Sessions.LoadSave())
	}

	screens := NewScreenResolver(cfg.Sessions, cfg.Screens)

	health := NewHealthController(cfg.Database, cfg.Version)
	catalogController := NewCatalogController(screens)
	booksController := NewBooksController(cfg.Library, screens)
	notesController := NewNotesController(cfg.Library)
	readingController := NewReadingController(cfg.Library)
	syncController := NewSyncController(cfg.SyncProgress, cfg.SyncScheduler)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// Catalog screen
	router.GET("/api/catalog", catalogController.GetSnapshot)
	router.PUT("/api/catalog/query", catalogController.SetKey)
	router.POST("/api/catalog/refresh", catalogController.Refresh)
	router.POST("/api/catalog/load", catalogController.LoadFromAPI)
	router.DELETE("/api/catalog/error", catalogController.ClearError)
	router.GET("/api/catalog/events", catalogController.Events)
	router.POST("/api/books/:id/action", catalogController.BookAction)
	router.DELETE("/api/books/:id/download", catalogController.CancelDownload)
	router.POST("/api/books/:id/bookmark/toggle", catalogController.ToggleBookmark)

	// Book details
	router.GET("/api/books/:id", booksController.GetBook)
	router.POST("/api/books/:id/open", booksController.OpenBook)
	router.GET("/api/books/:id/events", booksController.Events)
	router.GET("/api/books/:id/cover", booksController.GetCover)
	router.GET("/api/books/:id/download/status", booksController.GetDownloadStatus)
	router.GET("/api/genres", booksController.ListGenres)

	// Bookmarks
	router.POST("/api/books/:id/bookmark", booksController.CreateBookmark)
	router.DELETE("/api/books/:id/bookmark", booksController.DeleteBookmark)
	router.GET("/api/bookmarks", booksController.ListBookmarks)

	// Notes
	router.GET("/api/books/:id/notes", notesController.ListNotes)
	router.POST("/api/books/:id/notes", notesController.CreateNote)
	router.PUT("/api/notes/:id", notesController.UpdateNote)
	router.DELETE("/api/notes/:id", notesController.DeleteNote)

	// Reading positions and reader preferences
	router.GET("/api/books/:id/position", readingController.GetPosition)
	router.PUT("/api/books/:id/position", readingController.SavePosition)
	router.DELETE("/api/books/:id/position", readingController.ClearPosition)
	router.PATCH("/api/books/:id/progress", readingController.UpdateProgress)
	router.GET("/api/positions", readingController.ListPositions)
	router.GET("/api/books/:id/reader-state", readingController.GetReaderState)
	router.PUT("/api/books/:id/reader-state", readingController.SaveReaderState)

	// Sync
	router.GET("/api/sync/status", syncController.GetStatus)
	router.POST("/api/sync/run", syncController.RunNow)

	// Task queue endpoints
	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient)
		router.GET("/api/tasks/types", tasksController.ListTaskTypes)
		router.GET("/api/tasks/:id", tasksController.GetTaskStatus)
		router.POST("/api/tasks/:id/run", tasksController.RunTask)
	}

	return router
}

// SecurityHeadersMiddleware adds security headers to all responses. The
// API serves JSON only, so nothing may be loaded or framed.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}
