package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Client is one live connection together with the rooms it has joined.
// Memberships are only touched by the goroutine serving the connection.
type Client struct {
	ID   string
	Conn Conn

	memberships map[membership]*Room
}

type membership struct {
	room        string
	participant string
}

// NewClient binds conn to a fresh connection identifier.
func NewClient(conn Conn) *Client {
	return &Client{
		ID:          uuid.NewString(),
		Conn:        conn,
		memberships: make(map[membership]*Room),
	}
}

func (c *Client) track(room *Room, participantID string) {
	c.memberships[membership{room: room.Name(), participant: participantID}] = room
}

// Hub is the registry of live connections, keyed by connection identifier.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

// Unregister removes a client from the hub. It reports whether the client
// was registered, so only the first of several calls sees true.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.ID] != client {
		return false
	}
	delete(h.clients, client.ID)
	return true
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
