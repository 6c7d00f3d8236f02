// Package store defines the persistence collaborator consumed by the core.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Env1ct/Conversa/internal/model"
)

// ErrNotFound is returned when a record does not exist or is not visible to
// the requesting tenant. Callers must not be able to distinguish the two.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface for the conversation engine.
type Store interface {
	// Tenants
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
	CreateTenant(ctx context.Context, t *model.Tenant) error
	SetTenantPlan(ctx context.Context, id string, plan model.Plan) error

	// Chatbots and widgets
	GetChatbot(ctx context.Context, tenantID, id string) (*model.Chatbot, error)
	CreateChatbot(ctx context.Context, c *model.Chatbot) error
	GetWidget(ctx context.Context, id string) (*model.Widget, error)
	CreateWidget(ctx context.Context, w *model.Widget) error

	// Conversations
	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, tenantID, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, tenantID string, limit, offset int) ([]model.Conversation, int, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	SetConversationStatus(ctx context.Context, tenantID, id string, status model.ConversationStatus) error
	RateConversation(ctx context.Context, tenantID, id string, rating int, feedback string) error

	// Messages
	AppendMessage(ctx context.Context, m *model.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	// RecentMessages returns up to limit of the newest messages in the
	// conversation, oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)

	// Usage counts for limit checks, scoped to one tenant from a window start.
	CountConversationsSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	CountMessagesSince(ctx context.Context, tenantID string, since time.Time) (int, error)

	// Schema lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
