// Package remote maps keyboard and remote-control keys to kiosk actions,
// suppressing duplicate presses.
package remote

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Action is a logical remote-control button.
type Action string

const (
	ActionUp         Action = "up"
	ActionDown       Action = "down"
	ActionLeft       Action = "left"
	ActionRight      Action = "right"
	ActionOK         Action = "ok"
	ActionBack       Action = "back"
	ActionMenu       Action = "menu"
	ActionVoice      Action = "voice"
	ActionShutdown   Action = "shutdown"
	ActionFullscreen Action = "fullscreen"
)

const (
	DefaultDebounce     = 300 * time.Millisecond
	DefaultReleaseDelay = 100 * time.Millisecond
)

// DefaultKeyMap is the remote's key layout. Arrow keys mirror w/a/s/d.
var DefaultKeyMap = map[string]Action{
	"w":          ActionUp,
	"a":          ActionLeft,
	"s":          ActionDown,
	"d":          ActionRight,
	"ArrowUp":    ActionUp,
	"ArrowLeft":  ActionLeft,
	"ArrowDown":  ActionDown,
	"ArrowRight": ActionRight,
	"Enter":      ActionOK,
	"Backspace":  ActionBack,
	"m":          ActionMenu,
	"v":          ActionVoice,
	"p":          ActionShutdown,
	"f":          ActionFullscreen,
}

// Control debounces key presses per action and dispatches accepted actions
// to a handler.
type Control struct {
	keys     map[string]Action
	debounce time.Duration
	release  time.Duration
	handler  func(Action)
	now      func() time.Time

	mu       sync.Mutex
	limiters map[Action]*rate.Limiter
	current  Action
	pressed  bool
	timer    *time.Timer
}

// New returns a Control. Zero durations use the defaults; a nil keys map
// uses DefaultKeyMap. handler may be nil.
func New(keys map[string]Action, debounce, release time.Duration, handler func(Action)) *Control {
	if keys == nil {
		keys = DefaultKeyMap
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if release <= 0 {
		release = DefaultReleaseDelay
	}
	return &Control{
		keys:     keys,
		debounce: debounce,
		release:  release,
		handler:  handler,
		now:      time.Now,
		limiters: make(map[Action]*rate.Limiter),
	}
}

// Lookup maps a key name to its action.
func (c *Control) Lookup(key string) (Action, bool) {
	a, ok := c.keys[key]
	return a, ok
}

// Press handles a key-down. It returns the mapped action and whether it was
// dispatched; unknown keys and presses inside the debounce window are
// dropped.
func (c *Control) Press(key string) (Action, bool) {
	action, ok := c.keys[key]
	if !ok {
		return "", false
	}
	if !c.accept(action) {
		return action, false
	}
	if c.handler != nil {
		c.handler(action)
	}
	return action, true
}

func (c *Control) accept(action Action) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	lim, ok := c.limiters[action]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.debounce), 1)
		c.limiters[action] = lim
	}
	if !lim.AllowN(c.now(), 1) {
		return false
	}

	c.current = action
	c.pressed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.release, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.current == action {
			c.current = ""
			c.pressed = false
		}
	})
	return true
}

// Current returns the action still considered held, if any.
func (c *Control) Current() (Action, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.pressed
}

// Stop cancels a pending release.
func (c *Control) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}
