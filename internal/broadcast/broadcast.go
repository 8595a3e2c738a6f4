// Package broadcast fans price updates out to subscribers.
//
// Delivery is best-effort: a subscriber whose buffer is full misses the
// update rather than blocking the publisher.
package broadcast

import (
	"sync"

	"pricetracker/internal/market"
)

// Hub is a publish/subscribe fanout for price updates.
type Hub struct {
	buffer int

	mu   sync.Mutex
	subs map[chan market.PriceUpdate]struct{}
}

// NewHub creates a hub whose subscriber channels buffer up to buffer updates.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[chan market.PriceUpdate]struct{}),
	}
}

// Subscribe returns a new independent receiver. Every update published after
// this call is delivered to it; earlier updates are not replayed.
func (h *Hub) Subscribe() <-chan market.PriceUpdate {
	ch := make(chan market.PriceUpdate, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a receiver obtained from Subscribe and closes it.
func (h *Hub) Unsubscribe(sub <-chan market.PriceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		if ch == sub {
			delete(h.subs, ch)
			close(ch)
			return
		}
	}
}

// Publish delivers the update to every current subscriber. Full subscriber
// buffers drop the update.
func (h *Hub) Publish(update market.PriceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- update:
		default:
		}
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
