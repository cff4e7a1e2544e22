package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is a diagnostics event streamed to connected clients: one dispatch
// outcome, an expired subscription, or a ledger status change.
type Message struct {
	Type    string         `json:"type"`
	OwnerID int64          `json:"owner_id,omitempty"`
	RefID   string         `json:"ref_id,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Diagnostics message types
const (
	TypeDeliverySent        = "delivery_sent"
	TypeDeliveryFailed      = "delivery_failed"
	TypeSubscriptionExpired = "subscription_expired"
	TypeEventClicked        = "event_clicked"
)

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients. A nil hub is a no-op
// so callers can run without diagnostics attached.
func (h *Hub) Broadcast(msg Message) {
	if h == nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop the message instead of blocking
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
