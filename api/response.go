package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/silviahq/silvia/internal/conversation"
	"github.com/silviahq/silvia/internal/knowledge"
	"github.com/silviahq/silvia/internal/persona"
)

// envelope is the uniform JSON response shape.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

// respondFromError maps domain errors onto HTTP statuses. Unknown errors are
// logged and reported as a generic 500 so internals do not leak.
func respondFromError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound),
		errors.Is(err, persona.ErrNotFound),
		errors.Is(err, knowledge.ErrCollectionNotFound),
		errors.Is(err, knowledge.ErrDocumentNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Erro interno do servidor")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON parses the request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
