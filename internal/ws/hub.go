package ws

import (
	"context"
	"log/slog"
	"sync"
)

// Conn is the transport surface the hub needs from a websocket
// connection. WriteJSON must not be called concurrently; the hub
// serializes writes per connection.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

type member struct {
	conn Conn
	mu   sync.Mutex // serializes writes

	sessions map[string]struct{}
}

// Hub is the connection registry and session broadcaster. Connections
// register with an ID, join sessions, and receive unicast or broadcast
// JSON messages. A failed write tears down the failing connection only.
type Hub struct {
	mu       sync.RWMutex
	members  map[string]*member
	sessions map[string]map[string]struct{} // session id -> connection ids
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		members:  make(map[string]*member),
		sessions: make(map[string]map[string]struct{}),
	}
}

// Connect registers a connection under the given ID. Reconnecting with
// an ID that is still registered replaces the old transport.
func (h *Hub) Connect(id string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.members[id]; ok {
		// Swap under the write mutex so an in-flight Send never
		// writes through a half-replaced transport.
		old.mu.Lock()
		old.conn.Close()
		old.conn = conn
		old.mu.Unlock()
		return
	}
	h.members[id] = &member{conn: conn, sessions: make(map[string]struct{})}
}

// Disconnect removes a connection and all its session memberships.
// Disconnecting an unknown ID is a no-op.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id string) {
	m, ok := h.members[id]
	if !ok {
		return
	}
	for sessionID := range m.sessions {
		delete(h.sessions[sessionID], id)
		if len(h.sessions[sessionID]) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	delete(h.members, id)
	m.conn.Close()
}

// Join adds a connection to a session's broadcast group. A connection
// watches one session at a time; joining a new session leaves the
// previous membership. The caller is responsible for having validated
// that the session exists.
func (h *Hub) Join(id, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.members[id]
	if !ok {
		return
	}
	for prev := range m.sessions {
		if prev == sessionID {
			continue
		}
		delete(m.sessions, prev)
		delete(h.sessions[prev], id)
		if len(h.sessions[prev]) == 0 {
			delete(h.sessions, prev)
		}
	}
	m.sessions[sessionID] = struct{}{}
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]struct{})
	}
	h.sessions[sessionID][id] = struct{}{}
}

// Leave removes a connection from a session's broadcast group.
func (h *Hub) Leave(id, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.members[id]; ok {
		delete(m.sessions, sessionID)
	}
	delete(h.sessions[sessionID], id)
	if len(h.sessions[sessionID]) == 0 {
		delete(h.sessions, sessionID)
	}
}

// Send unicasts a message to one connection. A transport failure
// disconnects that connection.
func (h *Hub) Send(ctx context.Context, id string, v any) {
	h.mu.RLock()
	m, ok := h.members[id]
	h.mu.RUnlock()
	if !ok {
		return
	}

	m.mu.Lock()
	err := m.conn.WriteJSON(v)
	m.mu.Unlock()

	if err != nil {
		slog.WarnContext(ctx, "write failed, dropping connection",
			slog.String("connection_id", id),
			slog.String("error", err.Error()))
		h.mu.Lock()
		h.removeLocked(id)
		h.mu.Unlock()
	}
}

// Broadcast sends a message to every member of a session. Membership
// is snapshotted before sending, so members joining or leaving during
// the fanout are unaffected, and one failing connection does not stop
// delivery to the rest.
func (h *Hub) Broadcast(ctx context.Context, sessionID string, v any) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.sessions[sessionID]))
	for id := range h.sessions[sessionID] {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Send(ctx, id, v)
	}
}

// ClearSession drops every membership of a session without closing the
// connections.
func (h *Hub) ClearSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := range h.sessions[sessionID] {
		if m, ok := h.members[id]; ok {
			delete(m.sessions, sessionID)
		}
	}
	delete(h.sessions, sessionID)
}

// Members returns the connection IDs currently in a session.
func (h *Hub) Members(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.sessions[sessionID]))
	for id := range h.sessions[sessionID] {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}
