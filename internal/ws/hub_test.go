package ws

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
)

// fakeConn records written messages; fail makes every write error.
type fakeConn struct {
	mu     sync.Mutex
	wrote  []any
	fail   bool
	closed bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.wrote = append(c.wrote, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.wrote...)
}

func TestBroadcastReachesAllMembers(t *testing.T) {
	h := NewHub()
	conns := []*fakeConn{{}, {}, {}}
	for i, c := range conns {
		id := string(rune('a' + i))
		h.Connect(id, c)
		h.Join(id, "sess-1")
	}

	h.Broadcast(context.Background(), "sess-1", "hello")

	for i, c := range conns {
		if got := len(c.messages()); got != 1 {
			t.Errorf("conn %d received %d messages, want 1", i, got)
		}
	}
}

func TestBroadcastIsolatesFailedConnection(t *testing.T) {
	h := NewHub()
	good1, bad, good2 := &fakeConn{}, &fakeConn{fail: true}, &fakeConn{}
	h.Connect("g1", good1)
	h.Connect("bad", bad)
	h.Connect("g2", good2)
	for _, id := range []string{"g1", "bad", "g2"} {
		h.Join(id, "sess-1")
	}

	h.Broadcast(context.Background(), "sess-1", "payload")

	if len(good1.messages()) != 1 || len(good2.messages()) != 1 {
		t.Error("healthy connections should still receive the broadcast")
	}
	if !bad.closed {
		t.Error("failed connection should have been closed")
	}
	if h.Len() != 2 {
		t.Errorf("Len = %d, want 2 after dropping the failed connection", h.Len())
	}

	members := h.Members("sess-1")
	sort.Strings(members)
	if len(members) != 2 || members[0] != "g1" || members[1] != "g2" {
		t.Errorf("members = %v, want [g1 g2]", members)
	}
}

func TestBroadcastUnknownSessionIsNoop(t *testing.T) {
	h := NewHub()
	h.Broadcast(context.Background(), "missing", "payload")
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := NewHub()
	c := &fakeConn{}
	h.Connect("a", c)
	h.Join("a", "sess-1")

	h.Disconnect("a")
	h.Disconnect("a")

	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
	if got := h.Members("sess-1"); len(got) != 0 {
		t.Errorf("members = %v, want empty", got)
	}
	if !c.closed {
		t.Error("disconnect should close the transport")
	}
}

func TestConnectReplacesTransport(t *testing.T) {
	h := NewHub()
	first, second := &fakeConn{}, &fakeConn{}
	h.Connect("a", first)
	h.Join("a", "sess-1")

	h.Connect("a", second)

	if !first.closed {
		t.Error("replaced transport should be closed")
	}
	h.Send(context.Background(), "a", "hello")
	if len(first.messages()) != 0 || len(second.messages()) != 1 {
		t.Error("sends should reach the replacement transport only")
	}
	if got := h.Members("sess-1"); len(got) != 1 || got[0] != "a" {
		t.Errorf("membership should survive a reconnect, got %v", got)
	}
}

func TestJoinSwitchesSession(t *testing.T) {
	h := NewHub()
	h.Connect("a", &fakeConn{})
	h.Join("a", "sess-1")
	h.Join("a", "sess-2")

	if len(h.Members("sess-1")) != 0 {
		t.Error("joining a new session should leave the previous one")
	}
	if got := h.Members("sess-2"); len(got) != 1 || got[0] != "a" {
		t.Errorf("sess-2 members = %v, want [a]", got)
	}

	h.Disconnect("a")
	if len(h.Members("sess-2")) != 0 {
		t.Error("disconnect should remove the remaining membership")
	}
}

func TestLeave(t *testing.T) {
	h := NewHub()
	h.Connect("a", &fakeConn{})
	h.Connect("b", &fakeConn{})
	h.Join("a", "sess-1")
	h.Join("b", "sess-1")

	h.Leave("a", "sess-1")

	members := h.Members("sess-1")
	if len(members) != 1 || members[0] != "b" {
		t.Errorf("members = %v, want [b]", members)
	}
}

func TestClearSessionKeepsConnections(t *testing.T) {
	h := NewHub()
	c := &fakeConn{}
	h.Connect("a", c)
	h.Join("a", "sess-1")

	h.ClearSession("sess-1")

	if len(h.Members("sess-1")) != 0 {
		t.Error("session membership should be empty after ClearSession")
	}
	if h.Len() != 1 {
		t.Error("connection should remain registered")
	}
	if c.closed {
		t.Error("ClearSession must not close connections")
	}

	// The connection can still receive unicasts.
	h.Send(context.Background(), "a", "still here")
	if len(c.messages()) != 1 {
		t.Error("connection should still be reachable after ClearSession")
	}
}

func TestSendToUnknownConnectionIsNoop(t *testing.T) {
	h := NewHub()
	h.Send(context.Background(), "ghost", "payload")
}

func TestSendFailureDisconnects(t *testing.T) {
	h := NewHub()
	c := &fakeConn{fail: true}
	h.Connect("a", c)
	h.Join("a", "sess-1")

	h.Send(context.Background(), "a", "payload")

	if h.Len() != 0 {
		t.Error("failed send should remove the connection")
	}
	if len(h.Members("sess-1")) != 0 {
		t.Error("failed send should remove session memberships")
	}
}

func TestConcurrentJoinAndBroadcast(t *testing.T) {
	h := NewHub()
	for i := 0; i < 16; i++ {
		h.Connect(string(rune('a'+i)), &fakeConn{})
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		id := string(rune('a' + i))
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Join(id, "sess-1")
		}()
		go func() {
			defer wg.Done()
			h.Broadcast(context.Background(), "sess-1", "tick")
		}()
	}
	wg.Wait()

	if got := len(h.Members("sess-1")); got != 16 {
		t.Errorf("members = %d, want 16", got)
	}
}
