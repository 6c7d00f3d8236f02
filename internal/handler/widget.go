package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Env1ct/Conversa/internal/chat"
	"github.com/Env1ct/Conversa/internal/model"
	"github.com/Env1ct/Conversa/internal/store"
	"github.com/Env1ct/Conversa/pkg/logger"
)

// WidgetHandler serves the public embed surface: widget bootstrap, the turn
// entry point, and conversation history for the end user.
type WidgetHandler struct {
	engine *chat.Engine
	store  store.Store
	logger *logger.Logger
}

// NewWidgetHandler creates a widget handler.
func NewWidgetHandler(engine *chat.Engine, st store.Store, log *logger.Logger) *WidgetHandler {
	return &WidgetHandler{engine: engine, store: st, logger: log}
}

// resolveWidget loads the widget from the URL and enforces its embedding
// policy. Inactive widgets are indistinguishable from missing ones.
func (h *WidgetHandler) resolveWidget(w http.ResponseWriter, r *http.Request) (*model.Widget, bool) {
	widget, err := h.store.GetWidget(r.Context(), chi.URLParam(r, "widgetID"))
	if err != nil {
		respondError(w, h.logger, err)
		return nil, false
	}
	if !widget.Active {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	if origin := r.Header.Get("Origin"); origin != "" {
		if u, err := url.Parse(origin); err != nil || !widget.AllowsDomain(u.Hostname()) {
			writeError(w, http.StatusForbidden, "widget not allowed on this domain")
			return nil, false
		}
	}
	return widget, true
}

// Config serves the widget bootstrap payload for the embed script.
func (h *WidgetHandler) Config(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.resolveWidget(w, r)
	if !ok {
		return
	}

	chatbot, err := h.store.GetChatbot(r.Context(), widget.TenantID, widget.ChatbotID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.WidgetConfig{
		WidgetID:       widget.ID,
		Title:          widget.Title,
		PrimaryColor:   widget.PrimaryColor,
		Position:       widget.Position,
		WelcomeMessage: chatbot.WelcomeMessage,
	})
}

// SendMessage is the turn entry point: one user message in, one bot message
// out.
func (h *WidgetHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.resolveWidget(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.engine.SubmitMessage(r.Context(), &chat.TurnRequest{
		TenantID:       widget.TenantID,
		WidgetID:       widget.ID,
		ChatbotID:      widget.ChatbotID,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Content:        req.Content,
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListMessages returns a conversation's history in chronological order.
func (h *WidgetHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.resolveWidget(w, r)
	if !ok {
		return
	}

	conv, err := h.store.GetConversation(r.Context(), widget.TenantID, chi.URLParam(r, "conversationID"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	messages, err := h.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages: messages,
		Total:    len(messages),
	})
}

type closeConversationRequest struct {
	Rating   *int   `json:"rating,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// CloseConversation closes a conversation, optionally recording a rating.
func (h *WidgetHandler) CloseConversation(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.resolveWidget(w, r)
	if !ok {
		return
	}
	conversationID := chi.URLParam(r, "conversationID")

	var req closeConversationRequest
	if r.Body != nil {
		// An empty body is a plain close.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	if err := h.store.SetConversationStatus(r.Context(), widget.TenantID, conversationID, model.ConversationClosed); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if req.Rating != nil {
		if err := h.store.RateConversation(r.Context(), widget.TenantID, conversationID, *req.Rating, req.Feedback); err != nil {
			h.logger.Warn("rating not recorded", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.ConversationClosed)})
}
