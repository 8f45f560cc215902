package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"radboard/internal/domain"
)

// DefaultQueueSize bounds a connection's pending events.
const DefaultQueueSize = 64

// Registry tracks live client connections and the scopes each has joined,
// and performs the actual push. Each connection owns a bounded inbound queue
// drained by its own send loop, so one slow client never stalls the
// broadcaster or its peers.
type Registry struct {
	queueSize int

	mu    sync.RWMutex
	conns map[string]*Client
}

// NewRegistry constructs a registry whose connections buffer up to queueSize
// events each.
func NewRegistry(queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Registry{
		queueSize: queueSize,
		conns:     make(map[string]*Client),
	}
}

// Connect registers a new live connection and returns its handle.
func (r *Registry) Connect() *Client {
	c := &Client{
		ID:     uuid.NewString(),
		reg:    r,
		scopes: make(map[string]struct{}),
		max:    r.queueSize,
		wake:   make(chan struct{}, 1),
	}
	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()
	return c
}

// Disconnect removes the connection and releases its queue.
func (r *Registry) Disconnect(connectionID string) {
	r.mu.Lock()
	c, ok := r.conns[connectionID]
	delete(r.conns, connectionID)
	r.mu.Unlock()
	if ok {
		c.close()
	}
}

// Join adds the connection to a scope.
func (r *Registry) Join(connectionID, scope string) error {
	r.mu.RLock()
	c, ok := r.conns[connectionID]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}
	c.mu.Lock()
	c.scopes[scope] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Leave removes the connection from a scope.
func (r *Registry) Leave(connectionID, scope string) error {
	r.mu.RLock()
	c, ok := r.conns[connectionID]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}
	c.mu.Lock()
	delete(c.scopes, scope)
	c.mu.Unlock()
	return nil
}

// Broadcast fans the event out to every connection whose scopes include the
// event's scope, or to all connections when the event is unscoped. Delivery
// is at least once to live connections only; clients treat the stream as a
// cache-invalidation signal layered over the fetch API.
func (r *Registry) Broadcast(evt domain.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if evt.Scope == "" || c.inScope(evt.Scope) {
			c.push(evt)
		}
	}
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close disconnects every connection.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = map[string]*Client{}
	r.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// Client is one live connection's registry handle. The transport's write
// loop pops events with Receive; the registry pushes into the bounded queue
// with the same drop-oldest-and-resync discipline as the event bus.
type Client struct {
	ID  string
	reg *Registry
	max int

	mu            sync.Mutex
	scopes        map[string]struct{}
	queue         []domain.Event
	pendingResync bool
	closed        bool
	wake          chan struct{}
}

func (c *Client) inScope(scope string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.scopes[scope]
	return ok
}

func (c *Client) push(evt domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if len(c.queue) >= c.max {
		// Same discipline as the event bus: the oldest event's slot becomes
		// the resync marker, then the oldest real event is dropped so the
		// append stays within the bound. The resync is never the victim.
		if !c.pendingResync {
			c.pendingResync = true
			c.queue[0] = domain.Event{Topic: domain.TopicResync}
		}
		if len(c.queue) >= 2 {
			c.queue = append(c.queue[:1], c.queue[2:]...)
		}
	}
	c.queue = append(c.queue, evt)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Receive blocks until an event is queued, the context is done, or the
// connection is closed. The second return is false once the connection is
// closed and drained.
func (c *Client) Receive(ctx context.Context) (domain.Event, bool) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			evt := c.queue[0]
			c.queue = c.queue[1:]
			if evt.Topic == domain.TopicResync {
				c.pendingResync = false
			}
			c.mu.Unlock()
			return evt, true
		}
		if c.closed {
			c.mu.Unlock()
			return domain.Event{}, false
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.Event{}, false
		case <-wake:
			// Woken by a push, or by close; the next pass settles which.
		}
	}
}

func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.wake)
	c.mu.Unlock()
}
