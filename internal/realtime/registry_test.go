package realtime

import (
	"context"
	"testing"
	"time"

	"radboard/internal/domain"
)

func mustReceive(t *testing.T, c *Client) domain.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	evt, ok := c.Receive(ctx)
	if !ok {
		t.Fatal("Receive returned no event")
	}
	return evt
}

func assertIdle(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if evt, ok := c.Receive(ctx); ok {
		t.Fatalf("unexpected event delivered: %+v", evt)
	}
}

// A scoped event reaches only connections that joined the scope; an unscoped
// event reaches everyone.
func TestBroadcastScoping(t *testing.T) {
	reg := NewRegistry(8)
	defer reg.Close()

	viewer := reg.Connect()
	bystander := reg.Connect()
	if err := reg.Join(viewer.ID, "post:p1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	reg.Broadcast(domain.Event{Topic: domain.TopicJobUpdated, Scope: "post:p1", Payload: "done"})

	evt := mustReceive(t, viewer)
	if evt.Topic != domain.TopicJobUpdated || evt.Payload != "done" {
		t.Fatalf("viewer received wrong event: %+v", evt)
	}
	assertIdle(t, bystander)

	reg.Broadcast(domain.Event{Topic: domain.TopicPostCreated, Payload: "p2"})
	if evt := mustReceive(t, viewer); evt.Topic != domain.TopicPostCreated {
		t.Fatalf("viewer missed unscoped event: %+v", evt)
	}
	if evt := mustReceive(t, bystander); evt.Topic != domain.TopicPostCreated {
		t.Fatalf("bystander missed unscoped event: %+v", evt)
	}
}

func TestLeaveStopsScopedDelivery(t *testing.T) {
	reg := NewRegistry(8)
	defer reg.Close()

	c := reg.Connect()
	if err := reg.Join(c.ID, "post:p1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := reg.Leave(c.ID, "post:p1"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	reg.Broadcast(domain.Event{Topic: domain.TopicCommentAdded, Scope: "post:p1"})
	assertIdle(t, c)
}

func TestJoinUnknownConnection(t *testing.T) {
	reg := NewRegistry(8)
	defer reg.Close()
	if err := reg.Join("nope", "post:p1"); err != domain.ErrNotFound {
		t.Fatalf("Join unknown = %v, want ErrNotFound", err)
	}
	if err := reg.Leave("nope", "post:p1"); err != domain.ErrNotFound {
		t.Fatalf("Leave unknown = %v, want ErrNotFound", err)
	}
}

// Overflow drops the oldest queued event and surfaces exactly one resync
// marker at the front; the newest events survive.
func TestOverflowQueuesResyncOnce(t *testing.T) {
	reg := NewRegistry(3)
	defer reg.Close()

	c := reg.Connect()
	for i := 0; i < 10; i++ {
		reg.Broadcast(domain.Event{Topic: domain.TopicPostCreated, Payload: i})
	}

	first := mustReceive(t, c)
	if first.Topic != domain.TopicResync {
		t.Fatalf("first event after overflow = %s, want resync", first.Topic)
	}
	var payloads []int
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		evt, ok := c.Receive(ctx)
		cancel()
		if !ok {
			break
		}
		if evt.Topic == domain.TopicResync {
			t.Fatal("duplicate resync in one overflow window")
		}
		payloads = append(payloads, evt.Payload.(int))
	}
	if len(payloads) == 0 || payloads[len(payloads)-1] != 9 {
		t.Fatalf("newest event dropped: surviving payloads %v", payloads)
	}
	if len(payloads) >= 10 {
		t.Fatalf("overflow dropped nothing: %d events survived", len(payloads))
	}
}

// With no consumer draining, the connection queue sits exactly at its bound
// after overflow: the resync marker at the head, the newest events behind it.
func TestOverflowHoldsQueueBound(t *testing.T) {
	reg := NewRegistry(3)
	defer reg.Close()

	c := reg.Connect()
	for i := 0; i < 20; i++ {
		reg.Broadcast(domain.Event{Topic: domain.TopicPostCreated, Payload: i})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) != 3 {
		t.Fatalf("queue length = %d, want exactly 3", len(c.queue))
	}
	if c.queue[0].Topic != domain.TopicResync {
		t.Fatalf("queue head = %s, want resync", c.queue[0].Topic)
	}
	if c.queue[1].Payload.(int) != 18 || c.queue[2].Payload.(int) != 19 {
		t.Fatalf("queue tail = [%v %v], want the newest events", c.queue[1].Payload, c.queue[2].Payload)
	}
}

func TestDisconnectReleasesConnection(t *testing.T) {
	reg := NewRegistry(8)
	c := reg.Connect()
	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}

	reg.Disconnect(c.ID)
	if reg.Len() != 0 {
		t.Fatalf("Len after disconnect = %d, want 0", reg.Len())
	}
	if _, ok := c.Receive(context.Background()); ok {
		t.Fatal("Receive should report closed after disconnect")
	}
	// Broadcasting to a disconnected client must be a no-op, not a panic.
	reg.Broadcast(domain.Event{Topic: domain.TopicPostCreated})
}

// Queued events are still drained after close before Receive reports done.
func TestReceiveDrainsQueueAfterClose(t *testing.T) {
	reg := NewRegistry(8)
	c := reg.Connect()
	reg.Broadcast(domain.Event{Topic: domain.TopicPostCreated, Payload: "pending"})
	reg.Close()

	evt, ok := c.Receive(context.Background())
	if !ok || evt.Payload != "pending" {
		t.Fatalf("expected queued event after close, got %+v ok=%v", evt, ok)
	}
	if _, ok := c.Receive(context.Background()); ok {
		t.Fatal("Receive should report closed once drained")
	}
}

func TestReceiveHonoursContext(t *testing.T) {
	reg := NewRegistry(8)
	defer reg.Close()
	c := reg.Connect()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := c.Receive(ctx); ok {
			t.Error("Receive returned an event on a cancelled context")
		}
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after context cancellation")
	}
}
