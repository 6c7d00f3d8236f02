// Package handler implements the HTTP boundary of the API server.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Env1ct/Conversa/internal/chat"
	"github.com/Env1ct/Conversa/internal/store"
	"github.com/Env1ct/Conversa/internal/usage"
	"github.com/Env1ct/Conversa/pkg/logger"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondError maps the domain error taxonomy onto HTTP statuses. Internal
// details go to the log only; clients always get a safe generic message.
func respondError(w http.ResponseWriter, log *logger.Logger, err error) {
	var validationErr *chat.ValidationError
	var limitErr *usage.LimitExceededError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &limitErr):
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error": "plan limit reached",
			"usage": limitErr.Status,
		})
	case errors.Is(err, chat.ErrAIUnavailable):
		log.Warn("turn failed: backends unavailable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "the assistant is temporarily unavailable, please try again")
	default:
		log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
