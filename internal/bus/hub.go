package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Hub is the in-process bus. Each subscription owns a buffered channel; a
// publish never blocks, so a subscriber that falls behind loses events.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int

	dropped atomic.Int64
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{topics: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

var _ Publisher = (*Hub)(nil)

// Subscription is a stream of events for a changing set of topics.
type Subscription struct {
	// C is closed by Close.
	C <-chan Event

	ch     chan Event
	hub    *Hub
	topics map[string]struct{}
	closed bool
}

// Subscribe opens a subscription to topics. More can be added later.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	ch := make(chan Event, h.buffer)
	s := &Subscription{C: ch, ch: ch, hub: h, topics: make(map[string]struct{})}
	s.Add(topics...)
	return s
}

// Add subscribes to more topics.
func (s *Subscription) Add(topics ...string) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	for _, t := range topics {
		if h.topics[t] == nil {
			h.topics[t] = make(map[*Subscription]struct{})
		}
		h.topics[t][s] = struct{}{}
		s.topics[t] = struct{}{}
	}
}

// Remove unsubscribes from topics.
func (s *Subscription) Remove(topics ...string) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		h.detach(s, t)
	}
}

// Topics lists the current topics.
func (s *Subscription) Topics() []string {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// Close unsubscribes from everything and closes C. Safe to call twice.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	for t := range s.topics {
		h.detach(s, t)
	}
	s.closed = true
	close(s.ch)
}

// detach requires h.mu held for writing.
func (h *Hub) detach(s *Subscription, topic string) {
	if subs, ok := h.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(s.topics, topic)
}

// Publish hands event to every current subscriber of topic.
func (h *Hub) Publish(_ context.Context, topic string, event Event) error {
	event.Topic = topic

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.topics[topic] {
		select {
		case s.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// SubscriberCount returns the number of subscriptions on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Dropped is the number of deliveries skipped because a buffer was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
