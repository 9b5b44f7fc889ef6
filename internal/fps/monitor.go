// Package fps tracks inter-frame timing and signals when the frame rate
// stays below a threshold for too long.
package fps

import (
	"sync"
	"time"
)

const (
	DefaultThreshold = 12.0
	DefaultTimeout   = 4 * time.Second
)

// Monitor is a debounced low frame rate detector. The degradation signal
// fires once per low period; the frame rate must recover to the threshold
// before it can fire again.
type Monitor struct {
	threshold float64
	timeout   time.Duration

	mu         sync.Mutex
	last       time.Time
	lowSince   time.Time
	fired      bool
	fps        float64
	onDegraded func()
}

// New returns a Monitor. Non-positive values fall back to the defaults.
func New(threshold float64, timeout time.Duration) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{threshold: threshold, timeout: timeout}
}

// OnDegraded registers the callback invoked when degradation is signalled.
// It runs on the goroutine calling Tick, after the monitor lock is released.
func (m *Monitor) OnDegraded(fn func()) {
	m.mu.Lock()
	m.onDegraded = fn
	m.mu.Unlock()
}

// Tick records a frame at now and returns the instantaneous frame rate and
// whether this frame crossed the degradation timeout. The first frame only
// primes the timestamp.
func (m *Monitor) Tick(now time.Time) (float64, bool) {
	m.mu.Lock()

	if m.last.IsZero() {
		m.last = now
		m.mu.Unlock()
		return 0, false
	}

	elapsed := now.Sub(m.last)
	m.last = now
	if elapsed > 0 {
		m.fps = float64(time.Second) / float64(elapsed)
	}
	// Identical timestamps keep the previous rate.

	switch {
	case m.fps >= m.threshold:
		m.lowSince = time.Time{}
		m.fired = false
	case m.lowSince.IsZero() && !m.fired:
		m.lowSince = now
	}

	degraded := false
	if !m.lowSince.IsZero() && now.Sub(m.lowSince) > m.timeout {
		degraded = true
		m.fired = true
		m.lowSince = time.Time{}
	}
	fps, cb := m.fps, m.onDegraded
	m.mu.Unlock()

	if degraded && cb != nil {
		cb()
	}
	return fps, degraded
}

// FPS returns the most recently computed frame rate.
func (m *Monitor) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}

// Reset forgets all timing so the next Tick primes again.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.last = time.Time{}
	m.lowSince = time.Time{}
	m.fired = false
	m.fps = 0
	m.mu.Unlock()
}
