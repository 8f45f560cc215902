package eventbus

import (
	"sync"

	"radboard/internal/domain"
)

// DefaultQueueSize bounds a subscriber's pending events when no explicit
// size is configured.
const DefaultQueueSize = 256

// Handler consumes events on the subscription's dispatch goroutine. A slow
// handler delays only its own subscription; publishers never block on it.
type Handler func(evt domain.Event)

// Bus is the in-process publish/subscribe hub. Publish enqueues
// synchronously under the bus lock, which preserves publish order per
// subscriber; dispatch happens asynchronously on one goroutine per
// subscription. When a subscription's queue is full the oldest pending event
// is dropped and a single resync event is queued in its place, prompting the
// client to refetch authoritative state.
type Bus struct {
	queueSize int

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// New constructs a bus whose subscriptions buffer up to queueSize events.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		queueSize: queueSize,
		subs:      make(map[uint64]*Subscription),
	}
}

// Subscribe registers a handler for the given topics and scope. A nil or
// empty topic list matches every topic; an empty scope matches every scope.
// Cancel the returned subscription to stop delivery.
func (b *Bus) Subscribe(topics []domain.Topic, scope string, handler Handler) *Subscription {
	sub := &Subscription{
		bus:     b,
		scope:   scope,
		handler: handler,
		max:     b.queueSize,
		wake:    make(chan struct{}, 1),
	}
	if len(topics) > 0 {
		sub.topics = make(map[domain.Topic]struct{}, len(topics))
		for _, t := range topics {
			sub.topics[t] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.dispatch()
	return sub
}

// Publish delivers evt to every matching subscription. It never blocks on
// subscribers.
func (b *Bus) Publish(evt domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.matches(evt) {
			sub.enqueue(evt)
		}
	}
}

// Close cancels every subscription. Pending events are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = map[uint64]*Subscription{}
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription is a handle to an active registration on the bus.
type Subscription struct {
	bus     *Bus
	id      uint64
	topics  map[domain.Topic]struct{}
	scope   string
	handler Handler
	max     int
	wake    chan struct{}

	mu            sync.Mutex
	queue         []domain.Event
	pendingResync bool
	closed        bool
}

// Cancel removes the subscription from the bus and stops its dispatch
// goroutine. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.bus.remove(s.id)
	s.close()
}

func (s *Subscription) matches(evt domain.Event) bool {
	if s.topics != nil {
		if _, ok := s.topics[evt.Topic]; !ok {
			return false
		}
	}
	if s.scope != "" && evt.Scope != "" && evt.Scope != s.scope {
		return false
	}
	return true
}

func (s *Subscription) enqueue(evt domain.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.max {
		// The oldest event's slot becomes the resync marker: the client must
		// learn its stream has gaps. While a resync is pending it sits at the
		// head and is never the drop victim.
		if !s.pendingResync {
			s.pendingResync = true
			s.queue[0] = domain.Event{Topic: domain.TopicResync}
		}
		// Drop the oldest real event so the append below lands within the
		// configured bound.
		if len(s.queue) >= 2 {
			s.queue = append(s.queue[:1], s.queue[2:]...)
		}
	}
	s.queue = append(s.queue, evt)
	// Signal while holding the lock so close cannot race the send.
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
}

func (s *Subscription) dispatch() {
	for range s.wake {
		for {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			evt := s.queue[0]
			s.queue = s.queue[1:]
			if evt.Topic == domain.TopicResync {
				s.pendingResync = false
			}
			s.mu.Unlock()
			s.handler(evt)
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	close(s.wake)
}
