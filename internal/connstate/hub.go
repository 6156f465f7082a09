package connstate

import (
	"sync"

	"github.com/dmdmdm-nz/connstated/internal/runtime"
)

// Hub is an Emitter that fans events out to channel subscribers. Each
// subscriber has its own queue, so a slow reader delays only itself.
type Hub struct {
	maxBacklog int

	subsMu sync.Mutex
	subs   map[int]*runtime.SubQueue[Event]
	nextID int
	closed bool
}

// NewHub creates a Hub whose subscribers buffer at most maxBacklog pending
// events before the oldest are dropped. Zero means unbounded.
func NewHub(maxBacklog int) *Hub {
	return &Hub{
		maxBacklog: maxBacklog,
		subs:       make(map[int]*runtime.SubQueue[Event]),
	}
}

// Subscribe returns a channel of live events and a function that ends the
// subscription and closes the channel. Subscribing to a closed Hub yields an
// already closed channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	sub := runtime.NewSubQueue[Event](8, h.maxBacklog)

	h.subsMu.Lock()
	if h.closed {
		h.subsMu.Unlock()
		sub.Close()
		return sub.Chan(), func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.subsMu.Unlock()

	unsub := func() {
		h.subsMu.Lock()
		if q, ok := h.subs[id]; ok {
			delete(h.subs, id)
			q.Close()
		}
		h.subsMu.Unlock()
	}
	return sub.Chan(), unsub
}

func (h *Hub) Emit(ev Event) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for _, sub := range h.subs {
		sub.Enqueue(ev)
	}
}

// Subscribers is the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. It is safe to call more than once.
func (h *Hub) Close() error {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, q := range h.subs {
		q.Close()
		delete(h.subs, id)
	}
	return nil
}
