package telemetry

import (
	"sync"
	"sync/atomic"
)

// DefaultHistory is the number of records a Hub keeps when none is given.
const DefaultHistory = 600

// Hub fans records out to subscribers and keeps a bounded history of the
// most recent ones. Slow subscribers lose records instead of blocking the
// publisher.
type Hub struct {
	mu      sync.RWMutex
	ring    []Record
	next    int
	full    bool
	nextID  int
	clients map[int]chan Record

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub returns a hub remembering up to history records.
func NewHub(history int) *Hub {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Hub{
		ring:    make([]Record, history),
		clients: make(map[int]chan Record),
	}
}

// Publish implements Sink.
func (h *Hub) Publish(r Record) {
	h.mu.Lock()
	h.ring[h.next] = r
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}
	for _, ch := range h.clients {
		select {
		case ch <- r:
		default:
			h.dropped.Add(1)
		}
	}
	h.mu.Unlock()
	h.published.Add(1)
}

// Recent returns up to n of the most recent records, oldest first. A
// non-positive n returns the whole history.
func (h *Hub) Recent(n int) []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.next
	if h.full {
		size = len(h.ring)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Record, n)
	start := (h.next - n + len(h.ring)) % len(h.ring)
	for i := 0; i < n; i++ {
		out[i] = h.ring[(start+i)%len(h.ring)]
	}
	return out
}

// Subscribe registers a subscriber with the given channel buffer. The
// returned cancel function unregisters it and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Record, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Record, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.clients[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// HubStats reports hub counters.
type HubStats struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Stats returns the current counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	subs := len(h.clients)
	h.mu.RUnlock()
	return HubStats{
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
		Subscribers: subs,
	}
}
