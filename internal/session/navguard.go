package session

import (
	"slices"
	"strings"
	"sync"
)

// DefaultNavWindow is how many visited paths the guard remembers.
const DefaultNavWindow = 3

// Reset reasons reported by the guard.
const (
	ReasonInvalidRoute   = "invalid_route"
	ReasonNavigationLoop = "navigation_loop"
)

// NavGuard detects navigation faults that would leave an unattended kiosk
// stuck: invalid paths and short redirect loops.
type NavGuard struct {
	window int

	mu      sync.Mutex
	history []string
}

// NewNavGuard returns a guard remembering window paths, including the one
// being visited.
func NewNavGuard(window int) *NavGuard {
	if window < 2 {
		window = DefaultNavWindow
	}
	return &NavGuard{window: window}
}

// Visit records a navigation to path. It reports a reset reason when path
// is invalid or when it already appears in the window, excluding the entry
// just visited. Revisiting the current path is not navigation and is
// ignored. History is cleared whenever a reset is reported.
func (g *NavGuard) Visit(path string) (reason string, reset bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if path == "" || strings.Contains(path, "undefined") {
		g.history = nil
		return ReasonInvalidRoute, true
	}
	if n := len(g.history); n > 0 && g.history[n-1] == path {
		return "", false
	}

	prior := g.history
	if len(prior) > g.window-1 {
		prior = prior[len(prior)-(g.window-1):]
	}
	if slices.Contains(prior, path) {
		g.history = nil
		return ReasonNavigationLoop, true
	}

	g.history = append(prior, path)
	return "", false
}

// History returns the remembered paths, oldest first.
func (g *NavGuard) History() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.history)
}

// Clear forgets the history.
func (g *NavGuard) Clear() {
	g.mu.Lock()
	g.history = nil
	g.mu.Unlock()
}
