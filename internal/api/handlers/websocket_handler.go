package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	ws "github.com/suuu1021/file-upload/internal/websocket"
)

// WebSocketHandler streams the logged-in user's events over a websocket.
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler accepting the given origins.
// An empty list accepts any origin.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// Serve handles the WebSocket connection request.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, userID)
	h.hub.Join(client)

	go client.WritePump()
	go client.ReadPump(h.handleIncomingWSMessage)
}

// handleIncomingWSMessage answers keepalive pings from the browser.
func (h *WebSocketHandler) handleIncomingWSMessage(client *ws.Client, message []byte) {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Error().Err(err).Bytes("message", message).Msg("Error decoding websocket message")
		return
	}

	var reply []byte
	switch msg.Action {
	case "ping":
		reply, _ = json.Marshal(ws.Message{Action: ws.ActionPong})
	default:
		log.Warn().Str("action", msg.Action).Msg("Unknown websocket action received")
		reply = ws.NewErrorMessage("Unknown action: " + msg.Action)
	}

	h.hub.SendTo(client, reply)
}
