package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/taleloom/taleloom/backend/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades subscribers onto the change-notification hub.
type Handler struct {
	hub *notify.Hub
}

// New creates the websocket handler.
func New(hub *notify.Hub) *Handler {
	return &Handler{hub: hub}
}

// HandleSubscribe upgrades the connection and keeps it registered until the
// client goes away. The read loop exists only to observe the close.
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.hub.Register(conn)
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
