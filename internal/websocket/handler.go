package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/openmusicplayer/bilimusic/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Tokens are checked before the upgrade, so any origin may connect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connections. Authentication, when enabled, is
// applied by wrapping middleware.
type Handler struct {
	hub *Hub
	log *logger.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
		log: logger.Default().WithComponent("websocket"),
	}
}

// ServeWS upgrades the request and streams job events until either side
// disconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	client := NewClient(h.hub, conn)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// ServeWSHandler adapts ServeWS to http.Handler.
func (h *Handler) ServeWSHandler() http.Handler {
	return http.HandlerFunc(h.ServeWS)
}
