// ABOUTME: In-process hub routing notifications to per-conversation subscribers
// ABOUTME: Slow subscribers lose notifications rather than blocking publishers
package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber queue depth
const DefaultBuffer = 32

type topic struct {
	user, conversation string
}

// Subscription receives notifications for one conversation
type Subscription struct {
	C <-chan Notification

	hub   *Hub
	topic topic
	ch    chan Notification
	once  sync.Once
}

// Close unsubscribes and closes C
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub fans notifications out to subscribers
type Hub struct {
	mu      sync.Mutex
	subs    map[topic]map[*Subscription]struct{}
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// NewHub creates a hub; buffer <= 0 selects DefaultBuffer
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[topic]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers interest in one conversation.
// On a closed hub the returned subscription's channel is already closed.
func (h *Hub) Subscribe(userID, conversationID string) *Subscription {
	ch := make(chan Notification, h.buffer)
	sub := &Subscription{C: ch, hub: h, topic: topic{userID, conversationID}, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	set, ok := h.subs[sub.topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[sub.topic] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.topic]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.topic)
	}
	close(s.ch)
}

// Publish implements Publisher. It never blocks.
func (h *Hub) Publish(_ context.Context, n Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[topic{n.UserID, n.ConversationID}] {
		select {
		case sub.ch <- n:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for a conversation
func (h *Hub) Subscribers(userID, conversationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic{userID, conversationID}])
}

// Dropped returns how many notifications were discarded for full subscribers
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close ends every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for t, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, t)
	}
}
