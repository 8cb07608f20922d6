package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booklibrary/internal/sessions"
)

// defaultScreenID is used for every request when sessions are disabled.
const defaultScreenID = "local"

// ScreenResolver finds the screen state of a request.
type ScreenResolver interface {
	Screen(c *gin.Context) *sessions.Screen
}

type sessionScreens struct {
	manager *sessions.Manager
	screens *sessions.Screens
}

// NewScreenResolver binds each session to its own screen. With a nil
// manager all requests share one screen.
func NewScreenResolver(manager *sessions.Manager, screens *sessions.Screens) ScreenResolver {
	return &sessionScreens{manager: manager, screens: screens}
}

func (s *sessionScreens) Screen(c *gin.Context) *sessions.Screen {
	id := defaultScreenID
	if s.manager != nil {
		id = s.manager.ScreenID(c.Request.Context())
	}
	return s.screens.Get(c.Request.Context(), id)
}
