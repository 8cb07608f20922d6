package sessions

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/booklibrary/internal/presentation"
)

// Screen is the state of the screens a session looks at.
type Screen struct {
	Catalog *presentation.CatalogState
	Details *presentation.DetailsState

	start    sync.Once
	lastUsed time.Time
}

// Screens keeps one Screen per session ID and closes screens that were not
// used for a while.
type Screens struct {
	lib  presentation.Library
	idle time.Duration
	now  func() time.Time

	mu      sync.Mutex
	screens map[string]*Screen
}

func NewScreens(lib presentation.Library, idle time.Duration) *Screens {
	return &Screens{
		lib:     lib,
		idle:    idle,
		now:     time.Now,
		screens: make(map[string]*Screen),
	}
}

// Get returns the screen of a session, creating and loading it on first use.
func (s *Screens) Get(ctx context.Context, id string) *Screen {
	s.mu.Lock()
	screen, ok := s.screens[id]
	if !ok {
		screen = &Screen{
			Catalog: presentation.NewCatalogState(s.lib),
			Details: presentation.NewDetailsState(s.lib),
		}
		s.screens[id] = screen
	}
	screen.lastUsed = s.now()
	s.mu.Unlock()

	screen.start.Do(func() {
		screen.Catalog.Start(ctx)
	})
	return screen
}

func (s *Screens) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.screens)
}

// Sweep closes the screens idle for longer than the idle timeout and
// returns how many were closed.
func (s *Screens) Sweep() int {
	s.mu.Lock()
	var stale []*Screen
	cutoff := s.now().Add(-s.idle)
	for id, screen := range s.screens {
		if screen.lastUsed.Before(cutoff) {
			stale = append(stale, screen)
			delete(s.screens, id)
		}
	}
	s.mu.Unlock()

	for _, screen := range stale {
		screen.close()
	}
	return len(stale)
}

// Run sweeps idle screens every interval until ctx is done.
func (s *Screens) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Printf("Sessions: closed %d idle screens", n)
			}
		}
	}
}

// Close closes every screen, cancelling their downloads.
func (s *Screens) Close() {
	s.mu.Lock()
	all := s.screens
	s.screens = make(map[string]*Screen)
	s.mu.Unlock()

	for _, screen := range all {
		screen.close()
	}
}

func (sc *Screen) close() {
	sc.Catalog.Close()
	sc.Details.Close()
}
