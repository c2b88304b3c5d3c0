package websocket

import (
	"github.com/rs/zerolog/log"
	"github.com/suuu1021/file-upload/internal/models"
)

type userMessage struct {
	userID  string
	payload []byte
}

type clientMessage struct {
	client  *Client
	payload []byte
}

// Hub maintains the set of active clients and routes user events to them.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// A map of user IDs to the set of clients that user has open.
	subscriptions map[string]map[*Client]bool

	publish chan userMessage
	direct  chan clientMessage
	done    chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		publish:       make(chan userMessage, 64),
		direct:        make(chan clientMessage, 16),
		done:          make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.Register:
			h.clients[client] = true
			h.addSubscription(client)
			log.Info().Int("total_clients", len(h.clients)).Str("user_id", client.UserID).Msg("Client connected")
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Info().Int("total_clients", len(h.clients)).Str("user_id", client.UserID).Msg("Client disconnected")
			}
		case msg := <-h.direct:
			if h.clients[msg.client] {
				h.deliver(msg.client, msg.payload)
			}
		case msg := <-h.publish:
			for client := range h.subscriptions[msg.userID] {
				h.deliver(client, msg.payload)
			}
		}
	}
}

// Stop ends the Run loop and closes every client's send channel.
func (h *Hub) Stop() {
	close(h.done)
}

// Join registers client unless the hub has stopped.
func (h *Hub) Join(client *Client) {
	select {
	case h.Register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Leave unregisters client unless the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// PublishEvent queues an event for the clients of its owning user.
// Events without a user and events arriving while the queue is full are dropped.
func (h *Hub) PublishEvent(event models.Event) {
	if event.UserID == nil {
		return
	}
	payload, err := NewEventMessage(event)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to encode event message")
		return
	}

	select {
	case h.publish <- userMessage{userID: *event.UserID, payload: payload}:
	default:
		log.Warn().Str("event_id", event.ID).Msg("Event queue full, dropping websocket notification")
	}
}

// SendTo queues a message for a single registered client.
func (h *Hub) SendTo(client *Client, payload []byte) {
	select {
	case h.direct <- clientMessage{client: client, payload: payload}:
	case <-h.done:
	}
}

// deliver drops clients whose send buffer is full.
func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.Send)
	h.removeSubscription(client)
}

func (h *Hub) addSubscription(client *Client) {
	if h.subscriptions[client.UserID] == nil {
		h.subscriptions[client.UserID] = make(map[*Client]bool)
	}
	h.subscriptions[client.UserID][client] = true
}

func (h *Hub) removeSubscription(client *Client) {
	subs, ok := h.subscriptions[client.UserID]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.subscriptions, client.UserID)
	}
}
