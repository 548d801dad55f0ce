package broadcast

import (
	"sync"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/common"
)

// defaultBufferSize bounds each subscriber's event channel. Once full, the
// oldest buffered event is dropped to make room for the newest — a slow
// client falls behind on history, never on liveness, and a handler's
// Broadcast call never blocks on a stalled reader.
const defaultBufferSize = 64

// Subscriber receives events for one connected client of one agent.
type Subscriber struct {
	userID string
	ch     chan Event

	mu sync.Mutex // serialises the drain-then-push drop-oldest sequence
}

// Events returns the channel to range over for this subscriber's events.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

func (s *Subscriber) push(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.ch <- event:
		return
	default:
	}

	// Buffer full: drop the oldest entry and retry once. A concurrent
	// reader may have drained a slot between the two selects; that's fine,
	// the retry below still succeeds non-blockingly.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- event:
	default:
	}
}

// Hub fans out job lifecycle events to every subscriber of the originating
// agent. One Hub instance is shared process-wide.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[*Subscriber]struct{}
	logger     *common.Logger
	bufferSize int
}

// NewHub returns an empty Hub with the default per-subscriber buffer size.
func NewHub(logger *common.Logger) *Hub {
	return &Hub{
		subs:       make(map[string]map[*Subscriber]struct{}),
		logger:     logger,
		bufferSize: defaultBufferSize,
	}
}

// Subscribe registers a new subscriber for userID's events. Callers must
// call Unsubscribe when done (typically deferred from the connection's
// read/write pump).
func (h *Hub) Subscribe(userID string) *Subscriber {
	sub := &Subscriber{userID: userID, ch: make(chan Event, h.bufferSize)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes sub from its agent's subscriber set.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sub.userID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.userID)
	}
}

// Broadcast delivers event to every current subscriber of userID. One-way,
// best-effort, non-blocking — exactly the fire-and-forget contract the
// processor depends on at every suspension point it treats as synchronous.
func (h *Hub) Broadcast(userID string, event Event) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs[userID]))
	for sub := range h.subs[userID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.push(event)
	}
}

// SubscriberCount reports how many clients are currently subscribed to
// userID's events. Used by the admin surface.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
