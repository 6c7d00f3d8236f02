package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	// ConversationActive accepts new turns.
	ConversationActive ConversationStatus = "ACTIVE"
	// ConversationClosed is terminal.
	ConversationClosed ConversationStatus = "CLOSED"
	// ConversationPendingTransfer is waiting for a human agent pickup.
	ConversationPendingTransfer ConversationStatus = "PENDING_TRANSFER"
)

// Conversation is one chat session between an end user and a chatbot.
// Widget and chatbot references are nullable so a conversation survives
// deletion of its originating widget.
type Conversation struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenant_id"`
	WidgetID  *string            `json:"widget_id,omitempty"`
	ChatbotID *string            `json:"chatbot_id,omitempty"`
	UserID    string             `json:"user_id"`
	Status    ConversationStatus `json:"status"`
	Rating    *int               `json:"rating,omitempty"`
	Feedback  *string            `json:"feedback,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ListConversationsResponse is the dashboard listing payload.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}
