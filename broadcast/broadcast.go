// Package broadcast fans out timer events to every open tab. Delivery is
// fire-and-forget: a lagging subscriber loses messages rather than
// blocking the publisher, and receivers re-derive state from the store
// instead of trusting the payload.
package broadcast

import (
	"sync"
)

// EventType identifies a timer event.
type EventType string

const (
	TimerStarted EventType = "TIMER_STARTED"
	TimerStopped EventType = "TIMER_STOPPED"
)

// Event is a wake-up signal, not a state transfer. TaskID is advisory.
type Event struct {
	Type   EventType
	TaskID string
}

const subscriberBuffer = 8

// Hub is an in-process publish/subscribe channel for timer events.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new receiver. The returned cancel func must be
// called when the tab closes so the hub stops delivering to it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}

	h.subs[ch] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}

	return ch, cancel
}

// Publish delivers the event to every subscriber that can take it
// immediately. Subscribers with full buffers are skipped.
func (h *Hub) Publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close unregisters every subscriber and rejects future subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true

	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
