package progress

import (
	"sync"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 256

type subscriber struct {
	ch       chan Event
	done     chan struct{}
	doneOnce sync.Once
}

func (s *subscriber) stop() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Hub fans events out to subscribers.
//
// Intermediate events are dropped for a subscriber whose buffer is full. Terminal
// events are always delivered unless the subscriber goes away first, so a subscriber
// must keep reading until it unsubscribes.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	buffer int
	closed bool
}

// NewHub creates a Hub. buffer <= 0 selects DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[*subscriber]struct{}), buffer: buffer}
}

// Subscribe registers a new subscriber. The returned function unsubscribes and closes
// the channel, it may be called more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{
		ch:   make(chan Event, h.buffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub.ch, func() { h.remove(sub) }
}

func (h *Hub) remove(sub *subscriber) {
	// Release a publisher blocked on this subscriber before taking the write lock.
	sub.stop()
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
	h.mu.Unlock()
}

// Publish delivers ev to every subscriber.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if ev.Status.Terminal() {
			select {
			case sub.ch <- ev:
			case <-sub.done:
			}
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.stop()
		delete(h.subs, sub)
		close(sub.ch)
	}
}
