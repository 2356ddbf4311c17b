package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"identity-sessions/internal/apperr"
)

type errorMessage struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorEnvelope struct {
	ErrorsMessages []errorMessage `json:"errorsMessages"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, message, field string) {
	writeJSON(w, status, errorEnvelope{ErrorsMessages: []errorMessage{{Message: message, Field: field}}})
}

// writeError maps a service error to the HTTP envelope. Unclassified errors
// are logged and reported as a plain 500 without leaking internals.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	if appErr, ok := apperr.As(err); ok {
		writeErrorMessage(w, apperr.HTTPStatus(appErr), appErr.Message, appErr.Field)
		return
	}
	log.Error().Err(err).Msg("request failed")
	writeErrorMessage(w, http.StatusInternalServerError, "Internal server error", "")
}

// decodeBody reads the JSON request body into v and writes the 400 envelope
// itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body", "")
		return false
	}
	return true
}
