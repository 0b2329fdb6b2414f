// Package notify fans resolved-chat change events out to WebSocket
// subscribers. Consumers always receive the fully reconciled view, never a
// raw stored record.
package notify

import (
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/taleloom/taleloom/backend/internal/model/chat"
	"github.com/taleloom/taleloom/backend/internal/service/resolve"
)

// EventType discriminates hub payloads.
type EventType string

const (
	// EventChatResolved carries the resolved view of a chat whose visible
	// history just changed.
	EventChatResolved EventType = "chat.resolved"
	// EventWarning carries a resolution advisory.
	EventWarning EventType = "warning"
)

// Event is the wire payload sent to subscribers.
type Event struct {
	Type    EventType          `json:"type"`
	Chat    *chat.ResolvedChat `json:"chat,omitempty"`
	Warning *resolve.Warning   `json:"warning,omitempty"`
}

// Hub tracks subscriber connections and broadcasts events. Writes are
// serialized per hub; a failed write evicts the connection.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// Register adds a subscriber connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	log.WithField("subscribers", h.Count()).Debug("notification subscriber registered")
}

// Unregister removes a subscriber connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

// Count returns the current subscriber count.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends the event to every subscriber, dropping connections whose
// writes fail.
func (h *Hub) Broadcast(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteJSON(event); err != nil {
			log.WithError(err).Debug("evicting notification subscriber")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ChatResolved publishes the resolved view of a mutated chat.
func (h *Hub) ChatResolved(view *chat.ResolvedChat) {
	h.Broadcast(Event{Type: EventChatResolved, Chat: view})
}

// Warnings publishes each resolution advisory.
func (h *Hub) Warnings(warns []resolve.Warning) {
	for i := range warns {
		h.Broadcast(Event{Type: EventWarning, Warning: &warns[i]})
	}
}
