package model

import (
	"time"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser Sender = "USER"
	SenderBot  Sender = "BOT"
)

// Message is one utterance in a conversation. Immutable once created;
// ordering is creation order and is what context assembly relies on.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`

	Sender  Sender `json:"sender"`
	Content string `json:"content"`

	// Generation metadata, set on bot messages only.
	Model     *string  `json:"model,omitempty"`
	TokensIn  *int     `json:"tokens_in,omitempty"`
	TokensOut *int     `json:"tokens_out,omitempty"`
	LatencyMs *int64   `json:"latency_ms,omitempty"`
	CostUSD   *float64 `json:"cost_usd,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SendMessageRequest is the widget payload for one turn.
type SendMessageRequest struct {
	Content        string            `json:"content"`
	ConversationID string            `json:"conversation_id,omitempty"`
	UserID         string            `json:"user_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ListMessagesResponse is the history read payload.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
