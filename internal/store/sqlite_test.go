package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Env1ct/Conversa/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "conversa.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTenant(t *testing.T, s *SQLiteStore, plan model.Plan) *model.Tenant {
	t.Helper()
	now := time.Now()
	tenant := &model.Tenant{
		ID:        uuid.NewString(),
		Name:      "Acme",
		Plan:      plan,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return tenant
}

func seedConversation(t *testing.T, s *SQLiteStore, tenantID string) *model.Conversation {
	t.Helper()
	now := time.Now()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenantID,
		UserID:    "anon-1",
		Status:    model.ConversationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateConversation(context.Background(), conv))
	return conv
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestTenantRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, model.PlanBusiness)

	got, err := s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.Name, got.Name)
	assert.Equal(t, model.PlanBusiness, got.Plan)
	assert.True(t, got.Active)

	require.NoError(t, s.SetTenantPlan(ctx, tenant.ID, model.PlanEnterprise))
	got, err = s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanEnterprise, got.Plan)

	_, err = s.GetTenant(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SetTenantPlan(ctx, "missing", model.PlanStarter), ErrNotFound)
}

func TestChatbotScopedByTenant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, model.PlanStarter)
	other := seedTenant(t, s, model.PlanStarter)

	now := time.Now()
	bot := &model.Chatbot{
		ID:           uuid.NewString(),
		TenantID:     tenant.ID,
		Name:         "Support",
		SystemPrompt: "You are Acme's support bot",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateChatbot(ctx, bot))

	got, err := s.GetChatbot(ctx, tenant.ID, bot.ID)
	require.NoError(t, err)
	assert.Equal(t, "You are Acme's support bot", got.SystemPrompt)

	_, err = s.GetChatbot(ctx, other.ID, bot.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWidgetDomains(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, model.PlanStarter)

	now := time.Now()
	widget := &model.Widget{
		ID:             uuid.NewString(),
		TenantID:       tenant.ID,
		ChatbotID:      "bot-1",
		Title:          "Chat with us",
		AllowedDomains: []string{"acme.example", "www.acme.example"},
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, s.CreateWidget(ctx, widget))

	got, err := s.GetWidget(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, widget.AllowedDomains, got.AllowedDomains)
	assert.True(t, got.AllowsDomain("acme.example"))
	assert.False(t, got.AllowsDomain("evil.example"))
}

func TestConversationTenantScoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, model.PlanStarter)
	other := seedTenant(t, s, model.PlanStarter)
	conv := seedConversation(t, s, tenant.ID)

	got, err := s.GetConversation(ctx, tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationActive, got.Status)

	// The same id is invisible to another tenant.
	_, err = s.GetConversation(ctx, other.ID, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationStatusAndRating(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, model.PlanStarter)
	conv := seedConversation(t, s, tenant.ID)

	require.NoError(t, s.SetConversationStatus(ctx, tenant.ID, conv.ID, model.ConversationClosed))
	require.NoError(t, s.RateConversation(ctx, tenant.ID, conv.ID, 4, "quick answers"))

	got, err := s.GetConversation(ctx, tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationClosed, got.Status)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 4, *got.Rating)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, "quick answers", *got.Feedback)
}

func TestMessageOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, model.PlanStarter)
	conv := seedConversation(t, s, tenant.ID)

	base := time.Now()
	for i := 0; i < 15; i++ {
		sender := model.SenderUser
		if i%2 == 1 {
			sender = model.SenderBot
		}
		msg := &model.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conv.ID,
			Sender:         sender,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, s.AppendMessage(ctx, msg))
	}

	all, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, all, 15)
	assert.Equal(t, "message 0", all[0].Content)
	assert.Equal(t, "message 14", all[14].Content)

	// RecentMessages returns the newest N, oldest first.
	recent, err := s.RecentMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.Equal(t, "message 5", recent[0].Content)
	assert.Equal(t, "message 14", recent[9].Content)

	// Fewer messages than the limit returns them all.
	short, err := s.RecentMessages(ctx, conv.ID, 100)
	require.NoError(t, err)
	assert.Len(t, short, 15)
}

func TestMessageMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, model.PlanStarter)
	conv := seedConversation(t, s, tenant.ID)

	mdl := "gpt-4o-mini"
	tokensIn, tokensOut := 120, 48
	latency := int64(950)
	cost := 0.00012
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Sender:         model.SenderBot,
		Content:        "Here's how to reset your password...",
		Model:          &mdl,
		TokensIn:       &tokensIn,
		TokensOut:      &tokensOut,
		LatencyMs:      &latency,
		CostUSD:        &cost,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, s.AppendMessage(ctx, msg))

	all, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	require.NotNil(t, got.Model)
	assert.Equal(t, mdl, *got.Model)
	require.NotNil(t, got.TokensIn)
	assert.Equal(t, tokensIn, *got.TokensIn)
	require.NotNil(t, got.CostUSD)
	assert.InDelta(t, cost, *got.CostUSD, 1e-9)
}

func TestUsageCountsScopedByTenantAndWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, model.PlanStarter)
	other := seedTenant(t, s, model.PlanStarter)

	conv := seedConversation(t, s, tenant.ID)
	seedConversation(t, s, tenant.ID)
	seedConversation(t, s, other.ID)

	require.NoError(t, s.AppendMessage(ctx, &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Sender:         model.SenderUser,
		Content:        "hello",
		CreatedAt:      time.Now(),
	}))

	since := time.Now().Add(-time.Hour)
	convCount, err := s.CountConversationsSince(ctx, tenant.ID, since)
	require.NoError(t, err)
	assert.Equal(t, 2, convCount)

	msgCount, err := s.CountMessagesSince(ctx, tenant.ID, since)
	require.NoError(t, err)
	assert.Equal(t, 1, msgCount)

	// Nothing counted before the window.
	convCount, err = s.CountConversationsSince(ctx, tenant.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, convCount)

	// Other tenants are invisible.
	msgCount, err = s.CountMessagesSince(ctx, other.ID, since)
	require.NoError(t, err)
	assert.Zero(t, msgCount)
}

func TestListConversationsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, model.PlanStarter)
	for i := 0; i < 5; i++ {
		seedConversation(t, s, tenant.ID)
	}

	page, total, err := s.ListConversations(ctx, tenant.ID, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 3)

	rest, _, err := s.ListConversations(ctx, tenant.ID, 3, 3)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}
