// Package events pushes completed turns to the real-time delivery layer.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Env1ct/Conversa/internal/model"
	"github.com/Env1ct/Conversa/pkg/logger"
)

// TurnEvent is the normalized payload handed to connected widget clients
// after a successful turn.
type TurnEvent struct {
	TenantID       string        `json:"tenant_id"`
	ConversationID string        `json:"conversation_id"`
	BotMessage     model.Message `json:"bot_message"`
	ModelUsed      string        `json:"model_used"`
	FallbackUsed   bool          `json:"fallback_used"`
	LatencyMs      int64         `json:"latency_ms"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Publisher delivers turn events to the presentation layer. Delivery is best
// effort; the turn itself never fails on a publish error.
type Publisher interface {
	PublishTurn(ctx context.Context, ev *TurnEvent) error
	Close()
}

// TurnSubject returns the NATS subject for a conversation's turn events.
func TurnSubject(tenantID, conversationID string) string {
	return fmt.Sprintf("conversa.tenant.%s.conversation.%s", tenantID, conversationID)
}

// NATSPublisher publishes turn events over a NATS connection.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// Config holds NATS connection settings.
type Config struct {
	URL   string
	Token string
}

// Connect establishes the NATS connection used for turn fan-out.
func Connect(cfg Config, log *logger.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("conversa-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn, logger: log}, nil
}

// PublishTurn publishes a turn event to the conversation's subject.
func (p *NATSPublisher) PublishTurn(ctx context.Context, ev *TurnEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal turn event: %w", err)
	}
	if err := p.conn.Publish(TurnSubject(ev.TenantID, ev.ConversationID), data); err != nil {
		return fmt.Errorf("publish turn event: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// NoopPublisher drops events. Used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishTurn(context.Context, *TurnEvent) error { return nil }
func (NoopPublisher) Close()                                       {}
