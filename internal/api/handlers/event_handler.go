package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/suuu1021/file-upload/internal/services"
)

const maxEventLimit = 100

// EventHandler handles HTTP requests related to account events.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent returns the logged-in user's most recent events.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUserID(w, r)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20 // Default limit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := h.service.GetRecentEvents(r.Context(), id, limit)
	if err != nil {
		log.Error().Err(err).Str("user_id", id).Msg("Failed to retrieve events")
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
