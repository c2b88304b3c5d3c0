package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/suuu1021/file-upload/internal/apperrors"
	"github.com/suuu1021/file-upload/internal/auth"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps a service error to its HTTP status. Unclassified errors are
// logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.Error
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindUnknown || !errors.As(err, &appErr) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled request error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	status := http.StatusBadRequest
	switch kind {
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindStorage:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Storage failure")
	}
	writeJSON(w, status, map[string]string{"error": appErr.Message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// currentUserID returns the logged-in user's ID set by the auth gate.
func currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		log.Error().Str("path", r.URL.Path).Msg("Could not retrieve user claims from context")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "login required"})
		return "", false
	}
	return claims.UserID, true
}
