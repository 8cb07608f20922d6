// Package sessions binds browser sessions of the local API to their own
// screen state.
package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
)

// SessionKeyScreenID holds the ID of the screen state of a session.
const SessionKeyScreenID = "screen_id"

// Manager wraps scs.SessionManager with application-specific methods.
type Manager struct {
	*scs.SessionManager
}

// NewManager creates a session manager storing sessions in sqlDB.
func NewManager(sqlDB *sql.DB, lifetime time.Duration, secure bool) (*Manager, error) {
	_, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`)
	if err != nil {
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	sm := scs.New()
	sm.Store = sqlite3store.New(sqlDB)
	sm.Lifetime = lifetime
	sm.IdleTimeout = lifetime / 2

	sm.Cookie.Name = "session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = secure
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/"

	return &Manager{SessionManager: sm}, nil
}

// ScreenID returns the screen ID of the session, assigning a new one on
// first use.
func (m *Manager) ScreenID(ctx context.Context) string {
	if id := m.GetString(ctx, SessionKeyScreenID); id != "" {
		return id
	}
	id := uuid.NewString()
	m.Put(ctx, SessionKeyScreenID, id)
	return id
}
