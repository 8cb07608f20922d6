package http

import (
	"github.com/mrlokans/booklibrary/internal/library"
	"github.com/mrlokans/booklibrary/internal/sessions"
)

// RouterConfig contains all dependencies and configuration needed to create
// the HTTP router.
type RouterConfig struct {
	// Library use cases behind every endpoint
	Library *library.Service

	// Per-session screen state
	Screens  *sessions.Screens
	Sessions *sessions.Manager // nil: all requests share one screen

	// CSRF protection of mutating requests, off when the secret is empty
	CSRFSecret    []byte
	SecureCookies bool

	// Health and sync status
	Database      Pinger
	SyncProgress  SyncProgressSource
	SyncScheduler SyncScheduler // nil when periodic sync is disabled

	// Task queue client (optional)
	TaskClient TaskQueue

	// Application info
	Version string
}
