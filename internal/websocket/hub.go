package websocket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/code-arena/code-arena-backend/internal/models"
)

// Hub tracks one live connection per user and fans events out to them. It
// implements the notifier the services push through: fire-and-forget,
// at-most-once. A user without a connection simply misses the event.
type Hub struct {
	// userID -> *Client
	clients map[string]*Client
	mu      sync.RWMutex

	broadcast  chan *envelope
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

// envelope is the wire shape: a type discriminator plus the event payload.
type envelope struct {
	UserID  string       `json:"-"` // recipient; empty means everyone
	Type    string       `json:"type"`
	Payload models.Event `json:"payload"`
}

func NewHub() *Hub {
	logger, _ := zap.NewProduction()
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run processes registrations and outgoing events. Call in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.dispatch(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A reconnect replaces the old connection.
	if old, exists := h.clients[client.userID]; exists {
		close(old.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("userId", client.userID))
	}

	h.clients[client.userID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("userId", client.userID),
		zap.Int("totalClients", len(h.clients)))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[client.userID]; exists && current == client {
		delete(h.clients, client.userID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("userId", client.userID),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) dispatch(msg *envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.UserID == "" {
		for _, client := range h.clients {
			h.deliver(client, msg)
		}
		return
	}

	if client, exists := h.clients[msg.UserID]; exists {
		h.deliver(client, msg)
	}
}

func (h *Hub) deliver(client *Client, msg *envelope) {
	select {
	case client.send <- msg:
	default:
		// A client that cannot keep up gets dropped rather than blocking
		// everyone else's events.
		h.logger.Warn("Client send channel full, unregistering",
			zap.String("userId", client.userID))
		go func(c *Client) {
			h.unregister <- c
		}(client)
	}
}

// SendToUser pushes one event to one user.
func (h *Hub) SendToUser(userID string, event models.Event) {
	h.broadcast <- &envelope{
		UserID:  userID,
		Type:    event.EventType(),
		Payload: event,
	}
}

// SendToUsers pushes the same event to several users.
func (h *Hub) SendToUsers(userIDs []string, event models.Event) {
	for _, userID := range userIDs {
		h.SendToUser(userID, event)
	}
}

// Broadcast pushes an event to every connected user.
func (h *Hub) Broadcast(event models.Event) {
	h.broadcast <- &envelope{
		Type:    event.EventType(),
		Payload: event,
	}
}
