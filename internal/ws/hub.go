package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nufaill/fluffyCare-sub004/internal/logger"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
	"github.com/nufaill/fluffyCare-sub004/internal/observability"
)

type partyKey struct {
	id   string
	role models.Role
}

// Hub maintains active connections, chat rooms and the party index used for
// receipts and chat-updated notifications.
type Hub struct {
	clients     map[*Client]struct{}
	rooms       map[string]map[*Client]struct{}
	clientRooms map[*Client]map[string]struct{}
	parties     map[partyKey]map[*Client]struct{}
	mu          sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		rooms:       make(map[string]map[*Client]struct{}),
		clientRooms: make(map[*Client]map[string]struct{}),
		parties:     make(map[partyKey]map[*Client]struct{}),
	}
}

// Register adds a connection to the hub and its party index.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	key := partyKey{id: c.info.PartyID, role: c.info.Role}
	if _, ok := h.parties[key]; !ok {
		h.parties[key] = make(map[*Client]struct{})
	}
	h.parties[key][c] = struct{}{}
	observability.IncWSActive("chat")
}

// Unregister removes a connection from every room it joined.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for chatID := range h.clientRooms[c] {
		h.removeFromRoom(chatID, c)
	}
	delete(h.clientRooms, c)
	key := partyKey{id: c.info.PartyID, role: c.info.Role}
	if conns, ok := h.parties[key]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.parties, key)
		}
	}
	observability.DecWSActive("chat")
}

// Join adds the connection to a chat room. Joining twice is a no-op.
func (h *Hub) Join(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]struct{})
	}
	h.rooms[chatID][c] = struct{}{}
	if _, ok := h.clientRooms[c]; !ok {
		h.clientRooms[c] = make(map[string]struct{})
	}
	h.clientRooms[c][chatID] = struct{}{}
}

// Leave removes the connection from a chat room.
func (h *Hub) Leave(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(chatID, c)
	if rooms, ok := h.clientRooms[c]; ok {
		delete(rooms, chatID)
		if len(rooms) == 0 {
			delete(h.clientRooms, c)
		}
	}
}

func (h *Hub) removeFromRoom(chatID string, c *Client) {
	if conns, ok := h.rooms[chatID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, chatID)
		}
	}
}

// InRoom reports whether the connection currently belongs to the room.
func (h *Hub) InRoom(c *Client, chatID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[chatID][c]
	return ok
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HubStats is a point-in-time view of hub occupancy.
type HubStats struct {
	Connections int            `json:"connections"`
	Rooms       int            `json:"rooms"`
	Parties     int            `json:"parties"`
	ByRole      map[string]int `json:"byRole"`
}

// Stats snapshots connection, room and party counts.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	stats := HubStats{
		Connections: len(h.clients),
		Rooms:       len(h.rooms),
		Parties:     len(h.parties),
		ByRole:      make(map[string]int),
	}
	for c := range h.clients {
		stats.ByRole[string(c.info.Role)]++
	}
	return stats
}

// BroadcastToRoom sends an event to every room member except the connection
// whose id equals excludeConnID. It returns how many connections were queued.
func (h *Hub) BroadcastToRoom(chatID, event string, data interface{}, excludeConnID string) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[chatID]))
	for c := range h.rooms[chatID] {
		if excludeConnID != "" && c.info.ConnID == excludeConnID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return h.fanOut(targets, event, data)
}

// SendToParty sends an event to every connection of one party, joined or not.
func (h *Hub) SendToParty(partyID string, role models.Role, event string, data interface{}) int {
	h.mu.RLock()
	conns := h.parties[partyKey{id: partyID, role: role}]
	targets := make([]*Client, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return h.fanOut(targets, event, data)
}

func (h *Hub) fanOut(targets []*Client, event string, data interface{}) int {
	if len(targets) == 0 {
		return 0
	}
	payload, err := encodeEvent(event, data)
	if err != nil {
		logger.Error("encode %s event: %v", event, err)
		return 0
	}
	sent := 0
	for _, c := range targets {
		if c.enqueue(payload) {
			sent++
		}
	}
	observability.IncWSEvent("chat", event)
	return sent
}

// Close disconnects every client with a going-away close frame, used on shutdown.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}
