package fps

import (
	"testing"
	"time"
)

// feed ticks m at a fixed interval for the given span, starting at start,
// and returns the time of the last tick and how many ticks reported degraded.
func feed(m *Monitor, start time.Time, interval, span time.Duration) (time.Time, int) {
	fired := 0
	now := start
	for end := start.Add(span); !now.After(end); now = now.Add(interval) {
		if _, degraded := m.Tick(now); degraded {
			fired++
		}
	}
	return now.Add(-interval), fired
}

// TestFirstTickPrimes verifies the first frame produces no rate.
func TestFirstTickPrimes(t *testing.T) {
	m := New(0, 0)
	fps, degraded := m.Tick(time.Unix(100, 0))
	if fps != 0 || degraded {
		t.Errorf("first Tick = (%v, %v), want (0, false)", fps, degraded)
	}
	fps, _ = m.Tick(time.Unix(100, 0).Add(50 * time.Millisecond))
	if fps != 20 {
		t.Errorf("fps = %v, want 20", fps)
	}
	if m.FPS() != 20 {
		t.Errorf("FPS() = %v, want 20", m.FPS())
	}
}

// TestSustainedLowFiresOnce verifies ten seconds below threshold signals
// degradation exactly once.
func TestSustainedLowFiresOnce(t *testing.T) {
	m := New(DefaultThreshold, DefaultTimeout)
	calls := 0
	m.OnDegraded(func() { calls++ })

	// 5 fps for ten seconds.
	_, fired := feed(m, time.Unix(0, 0), 200*time.Millisecond, 10*time.Second)
	if fired != 1 {
		t.Errorf("degraded ticks = %d, want 1", fired)
	}
	if calls != 1 {
		t.Errorf("callback calls = %d, want 1", calls)
	}
}

// TestShortDipDoesNotFire verifies low periods under the timeout stay silent.
func TestShortDipDoesNotFire(t *testing.T) {
	m := New(DefaultThreshold, DefaultTimeout)
	start := time.Unix(0, 0)

	last, fired := feed(m, start, 200*time.Millisecond, 3*time.Second)
	if fired != 0 {
		t.Fatalf("fired during dip")
	}
	// One fast frame recovers and resets the timer.
	last = last.Add(30 * time.Millisecond)
	m.Tick(last)
	_, fired = feed(m, last.Add(200*time.Millisecond), 200*time.Millisecond, 3*time.Second)
	if fired != 0 {
		t.Errorf("fired after recovery reset the timer")
	}
}

// TestRecoveryRearms verifies a second low period fires again only after the
// rate recovered above the threshold.
func TestRecoveryRearms(t *testing.T) {
	m := New(DefaultThreshold, DefaultTimeout)
	last, fired := feed(m, time.Unix(0, 0), 250*time.Millisecond, 5*time.Second)
	if fired != 1 {
		t.Fatalf("first low period fired %d times", fired)
	}

	last, _ = feed(m, last.Add(30*time.Millisecond), 30*time.Millisecond, time.Second)
	_, fired = feed(m, last.Add(250*time.Millisecond), 250*time.Millisecond, 5*time.Second)
	if fired != 1 {
		t.Errorf("second low period fired %d times, want 1", fired)
	}
}

// TestReset verifies Reset makes the next tick prime again.
func TestReset(t *testing.T) {
	m := New(DefaultThreshold, DefaultTimeout)
	now := time.Unix(0, 0)
	m.Tick(now)
	m.Tick(now.Add(100 * time.Millisecond))
	m.Reset()
	if fps, _ := m.Tick(now.Add(time.Hour)); fps != 0 {
		t.Errorf("fps after reset = %v, want 0", fps)
	}
}
