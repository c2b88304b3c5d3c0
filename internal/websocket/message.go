package websocket

import (
	"encoding/json"

	"github.com/suuu1021/file-upload/internal/models"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

const (
	ActionEvent = "event"
	ActionError = "error"
	ActionPong  = "pong"
)

// NewEventMessage encodes an event notification.
func NewEventMessage(event models.Event) ([]byte, error) {
	return json.Marshal(Message{Action: ActionEvent, Payload: event})
}

// NewErrorMessage encodes an error notification for a single client.
func NewErrorMessage(msg string) []byte {
	b, _ := json.Marshal(Message{Action: ActionError, Payload: map[string]string{"error": msg}})
	return b
}
