package kiosk

import (
	"encoding/json"
	"sync"

	"github.com/claude/romkiosk/internal/remote"
	"github.com/claude/romkiosk/internal/session"
	"github.com/claude/romkiosk/internal/tracking"
)

// Message kinds sent to presentation clients.
const (
	KindEvent  = "event"
	KindAction = "action"
	KindHands  = "hands"
)

// Message is one outbound notification for presentation clients.
type Message struct {
	Kind   string                `json:"kind"`
	Event  *session.Event        `json:"event,omitempty"`
	Action remote.Action         `json:"action,omitempty"`
	Hands  *tracking.HandResults `json:"hands,omitempty"`
}

// subscriberBuffer is the per-client queue length. Lossy messages may
// fill only half of it so control messages always find room.
const subscriberBuffer = 64

// lossy reports whether m is a high-rate update a lagging client can miss.
func (m Message) lossy() bool {
	switch m.Kind {
	case KindHands:
		return true
	case KindEvent:
		return m.Event != nil && m.Event.Type == session.EventAngle
	}
	return false
}

// Hub fans messages out to subscribers. A subscriber that falls behind
// misses angle and hand updates rather than blocking the kiosk; control
// messages displace the oldest queued message instead of being dropped.
type Hub struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan []byte]struct{})}
}

// Subscribe returns a channel of JSON-encoded messages and a function that
// detaches it. The channel is closed on detach.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast encodes m once and offers it to every subscriber.
func (h *Hub) Broadcast(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	lossy := m.lossy()

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		if lossy {
			if len(ch) < cap(ch)/2 {
				ch <- data
			}
			continue
		}
		select {
		case ch <- data:
		default:
			select {
			case <-ch:
			default:
			}
			// The hub is the only sender, so there is room now.
			ch <- data
		}
	}
}

// Len reports the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
