package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/services/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler upgrades connections and registers them with the event hub
type WebSocketHandler struct {
	hub    *events.Hub
	logger arbor.ILogger
}

func NewWebSocketHandler(hub *events.Hub, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	// Server instance ID lets clients detect restarts and resubscribe
	conn.WriteJSON(map[string]string{
		"type":               "connected",
		"server_instance_id": h.hub.InstanceID,
	})

	h.hub.Register(conn)
}
