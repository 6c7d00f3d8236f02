package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Env1ct/Conversa/internal/middleware"
	"github.com/Env1ct/Conversa/internal/model"
	"github.com/Env1ct/Conversa/internal/store"
	"github.com/Env1ct/Conversa/internal/usage"
	"github.com/Env1ct/Conversa/pkg/logger"
)

// ConversationHandler serves tenant-scoped dashboard reads.
type ConversationHandler struct {
	store   store.Store
	limiter *usage.Limiter
	logger  *logger.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(st store.Store, limiter *usage.Limiter, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{store: st, limiter: limiter, logger: log}
}

// List returns the tenant's conversations, newest activity first.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	conversations, total, err := h.store.ListConversations(r.Context(), tenantID, limit, offset)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ListConversationsResponse{
		Conversations: conversations,
		Total:         total,
		HasMore:       offset+len(conversations) < total,
	})
}

// Get returns one conversation with its messages.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	conv, err := h.store.GetConversation(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	messages, err := h.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": conv,
		"messages":     messages,
	})
}

// Usage returns the tenant's current-month usage against its plan limits.
func (h *ConversationHandler) Usage(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	tenant, err := h.store.GetTenant(r.Context(), tenantID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	snapshot, err := h.limiter.Snapshot(r.Context(), tenant)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"plan":   tenant.Plan,
		"limits": tenant.Limits(),
		"usage":  snapshot,
	})
}
