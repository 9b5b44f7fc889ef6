package remote

import (
	"testing"
	"time"
)

// TestPressDebounce verifies duplicate presses of one action are dropped
// inside the window while other actions pass.
func TestPressDebounce(t *testing.T) {
	var got []Action
	c := New(nil, 0, 0, func(a Action) { got = append(got, a) })
	defer c.Stop()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	if a, ok := c.Press("Enter"); !ok || a != ActionOK {
		t.Fatalf("first press = %s, %v", a, ok)
	}
	now = now.Add(100 * time.Millisecond)
	if _, ok := c.Press("Enter"); ok {
		t.Error("duplicate inside window dispatched")
	}
	if _, ok := c.Press("d"); !ok {
		t.Error("different action suppressed")
	}
	now = now.Add(250 * time.Millisecond)
	if _, ok := c.Press("Enter"); !ok {
		t.Error("press after window suppressed")
	}

	want := []Action{ActionOK, ActionRight, ActionOK}
	if len(got) != len(want) {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dispatched[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// TestUnknownKey verifies unmapped keys are ignored.
func TestUnknownKey(t *testing.T) {
	c := New(nil, 0, 0, nil)
	if _, ok := c.Press("q"); ok {
		t.Error("unmapped key dispatched")
	}
	if _, held := c.Current(); held {
		t.Error("unmapped key left a held action")
	}
}

// TestReleaseAfterDelay verifies the held action clears after the release
// delay.
func TestReleaseAfterDelay(t *testing.T) {
	c := New(nil, 0, 20*time.Millisecond, nil)
	defer c.Stop()
	c.Press("ArrowDown")
	if a, held := c.Current(); !held || a != ActionDown {
		t.Fatalf("Current() = %s, %v", a, held)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, held := c.Current(); !held {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("action still held after release delay")
}
