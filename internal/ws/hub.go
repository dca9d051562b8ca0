package ws

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"sync-service/internal/engine"
	"sync-service/internal/observability"
	"sync-service/internal/protocol"
)

// Hub tracks live connections, which user each one speaks for and the group
// rooms users are subscribed to. It implements engine.Transport.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	users   map[string]*Client
	rooms   map[string]map[string]bool
}

var _ engine.Transport = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		users:   make(map[string]*Client),
		rooms:   make(map[string]map[string]bool),
	}
}

// Register adds a connection and returns its client.
func (h *Hub) Register(conn *websocket.Conn, info ConnInfo) *Client {
	c := newClient(conn, info)
	h.mu.Lock()
	h.clients[info.ConnID] = c
	h.mu.Unlock()
	return c
}

// Unregister removes c. active reports whether c was still the connection of
// its user; a superseded connection going away must not remove the user from
// its groups.
func (h *Hub) Unregister(c *Client) (userID string, active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.ID())
	c.close()

	userID = c.UserID()
	if userID == "" {
		return "", false
	}
	if h.users[userID] != c {
		return userID, false
	}
	delete(h.users, userID)
	return userID, true
}

// Reply sends ev to one connection.
func (h *Hub) Reply(connID string, ev protocol.Event) {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	payload, err := protocol.Encode(ev)
	if err != nil {
		log.Printf("encode event failed event=%s: %v", ev.Event, err)
		return
	}
	h.deliver(c, payload)
}

// Bind makes connID the active connection of userID. An older connection of
// the same user is closed. A connection speaks for one user at a time.
func (h *Hub) Bind(connID, userID string) {
	h.mu.Lock()
	c := h.clients[connID]
	if c == nil {
		h.mu.Unlock()
		return
	}
	c.mu.Lock()
	old := c.userID
	c.userID = userID
	c.mu.Unlock()
	if old != "" && old != userID && h.users[old] == c {
		delete(h.users, old)
	}
	prev := h.users[userID]
	h.users[userID] = c
	h.mu.Unlock()

	if prev != nil && prev != c {
		prev.mu.Lock()
		prev.superseded = true
		prev.mu.Unlock()
		prev.close()
		log.Printf("connection superseded user_id=%s old_conn_id=%s new_conn_id=%s", userID, prev.ID(), connID)
	}
}

func (h *Hub) Subscribe(groupID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[groupID]; !ok {
		h.rooms[groupID] = make(map[string]bool)
	}
	h.rooms[groupID][userID] = true
}

func (h *Hub) Unsubscribe(groupID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if users, ok := h.rooms[groupID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(h.rooms, groupID)
		}
	}
}

// Broadcast sends ev to every user subscribed to groupID except exceptUserID.
// The payload is encoded once and queued on each connection without blocking.
func (h *Hub) Broadcast(groupID string, ev protocol.Event, exceptUserID string) {
	payload, err := protocol.Encode(ev)
	if err != nil {
		log.Printf("encode event failed event=%s group_id=%s: %v", ev.Event, groupID, err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[groupID]))
	for userID := range h.rooms[groupID] {
		if userID == exceptUserID {
			continue
		}
		if c := h.users[userID]; c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	observability.IncBroadcast(ev.Event)
	for _, c := range targets {
		h.deliver(c, payload)
	}
}

// Subscribers returns the users subscribed to groupID.
func (h *Hub) Subscribers(groupID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms[groupID]))
	for userID := range h.rooms[groupID] {
		out = append(out, userID)
	}
	return out
}

func (h *Hub) deliver(c *Client, payload []byte) {
	if err := c.enqueue(payload); err != nil {
		log.Printf("websocket send dropped conn_id=%s user_id=%s: %v", c.ID(), c.UserID(), err)
		publishWSEvent(context.Background(), "ws_error", c.info, err.Error())
	}
}
