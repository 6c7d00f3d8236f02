package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Env1ct/Conversa/internal/ai"
	"github.com/Env1ct/Conversa/internal/model"
	"github.com/Env1ct/Conversa/internal/routing"
	"github.com/Env1ct/Conversa/internal/store"
	"github.com/Env1ct/Conversa/internal/usage"
	"github.com/Env1ct/Conversa/pkg/logger"
)

// fakeBackend records every call and replies with a canned response or error.
type fakeBackend struct {
	mu    sync.Mutex
	name  string
	reply string
	err   error
	calls []capturedCall
}

type capturedCall struct {
	model        string
	systemPrompt string
	messages     []ai.ChatMessage
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Generate(ctx context.Context, model string, req *ai.Request) (*ai.Response, error) {
	b.mu.Lock()
	b.calls = append(b.calls, capturedCall{
		model:        model,
		systemPrompt: req.SystemPrompt,
		messages:     append([]ai.ChatMessage(nil), req.Messages...),
	})
	b.mu.Unlock()

	if b.err != nil {
		return nil, b.err
	}
	return &ai.Response{
		Content:   b.reply,
		Model:     model,
		TokensIn:  40,
		TokensOut: 20,
		CostUSD:   0.0001,
	}, nil
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBackend) lastCall(t *testing.T) capturedCall {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.calls)
	return b.calls[len(b.calls)-1]
}

func providerDown(name string) error {
	return &ai.ProviderError{Provider: name, Model: "m", Kind: ai.ErrTimeout, Err: context.DeadlineExceeded}
}

type fixture struct {
	store   *store.SQLiteStore
	engine  *Engine
	tenant  *model.Tenant
	chatbot *model.Chatbot
	widget  *model.Widget
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "conversa.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newFixture(t *testing.T, plan model.Plan, registry *ai.Registry) *fixture {
	t.Helper()
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	tenant := &model.Tenant{
		ID: uuid.NewString(), Name: "Acme", Plan: plan, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateTenant(ctx, tenant))

	chatbot := &model.Chatbot{
		ID: uuid.NewString(), TenantID: tenant.ID, Name: "Support",
		SystemPrompt:   "You are Acme's support bot",
		WelcomeMessage: "Hi! How can we help?",
		Active:         true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateChatbot(ctx, chatbot))

	widget := &model.Widget{
		ID: uuid.NewString(), TenantID: tenant.ID, ChatbotID: chatbot.ID,
		Title: "Chat", Active: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateWidget(ctx, widget))

	engine := NewEngine(
		st,
		registry,
		usage.NewLimiter(st),
		routing.NewClassifier(routing.DefaultClassifierConfig()),
		nil,
		logger.NewNop(),
		Config{ProviderTimeout: 5 * time.Second},
	)

	return &fixture{store: st, engine: engine, tenant: tenant, chatbot: chatbot, widget: widget}
}

func (f *fixture) turn(content, conversationID string) *TurnRequest {
	return &TurnRequest{
		TenantID:       f.tenant.ID,
		WidgetID:       f.widget.ID,
		ChatbotID:      f.chatbot.ID,
		ConversationID: conversationID,
		Content:        content,
	}
}

func singleBackendRegistry(b ai.Backend, model string) *ai.Registry {
	r := ai.NewRegistry(ai.TierEconomy)
	r.Register(ai.TierEconomy, b, model)
	return r
}

func TestSubmitMessageEndToEnd(t *testing.T) {
	backend := &fakeBackend{name: "openai", reply: "Here's how to reset your password..."}
	f := newFixture(t, model.PlanStarter, singleBackendRegistry(backend, "gpt-4o-mini"))
	ctx := context.Background()

	result, err := f.engine.SubmitMessage(ctx, f.turn("How do I reset my password?", ""))
	require.NoError(t, err)

	assert.Equal(t, "Here's how to reset your password...", result.BotMessage.Content)
	assert.Equal(t, "gpt-4o-mini", result.ModelUsed)
	assert.Equal(t, ai.TierEconomy, result.Tier)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, 1, backend.callCount())

	// USER then BOT, conversation still active.
	conv, err := f.store.GetConversation(ctx, f.tenant.ID, result.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationActive, conv.Status)
	assert.True(t, strings.HasPrefix(conv.UserID, "anon-"))

	messages, err := f.store.ListMessages(ctx, result.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.SenderUser, messages[0].Sender)
	assert.Equal(t, "How do I reset my password?", messages[0].Content)
	assert.Equal(t, model.SenderBot, messages[1].Sender)
	require.NotNil(t, messages[1].Model)
	assert.Equal(t, "gpt-4o-mini", *messages[1].Model)

	// The canonical context carries both the persona and the company framing.
	call := backend.lastCall(t)
	assert.Contains(t, call.systemPrompt, "You are Acme's support bot")
	assert.Contains(t, call.systemPrompt, "Acme")
	require.Len(t, call.messages, 1)
	assert.Equal(t, ai.RoleUser, call.messages[0].Role)
}

func TestContextAssemblyBoundedAndOrdered(t *testing.T) {
	backend := &fakeBackend{name: "openai", reply: "ok"}
	f := newFixture(t, model.PlanStarter, singleBackendRegistry(backend, "gpt-4o-mini"))
	ctx := context.Background()

	first, err := f.engine.SubmitMessage(ctx, f.turn("hello", ""))
	require.NoError(t, err)
	convID := first.ConversationID

	// Backfill history beyond the context window.
	base := time.Now()
	for i := 0; i < 15; i++ {
		sender := model.SenderUser
		if i%2 == 1 {
			sender = model.SenderBot
		}
		require.NoError(t, f.store.AppendMessage(ctx, &model.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: convID,
			Sender:         sender,
			Content:        fmt.Sprintf("history %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	_, err = f.engine.SubmitMessage(ctx, f.turn("latest question", convID))
	require.NoError(t, err)

	call := backend.lastCall(t)
	// 10 history messages plus the current one.
	require.Len(t, call.messages, 11)
	assert.Equal(t, "history 5", call.messages[0].Content)
	assert.Equal(t, "history 14", call.messages[9].Content)
	assert.Equal(t, "latest question", call.messages[10].Content)
	assert.Equal(t, ai.RoleUser, call.messages[10].Role)

	// Sender to role mapping holds across the window.
	for _, m := range call.messages[:10] {
		assert.Contains(t, []string{ai.RoleUser, ai.RoleAssistant}, m.Role)
	}
	assert.Equal(t, ai.RoleAssistant, call.messages[0].Role) // history 5 was a bot turn
}

func TestFallbackServesTurn(t *testing.T) {
	primary := &fakeBackend{name: "openai", err: providerDown("openai")}
	fallback := &fakeBackend{name: "openai", reply: "fallback answer"}
	registry := ai.NewRegistry(ai.TierEconomy)
	registry.Register(ai.TierStandard, primary, "gpt-4o")
	registry.Register(ai.TierEconomy, fallback, "gpt-4o-mini")

	// Business plan + medium complexity selects the standard tier.
	f := newFixture(t, model.PlanBusiness, registry)

	result, err := f.engine.SubmitMessage(context.Background(), f.turn("Do you integrate with Slack?", ""))
	require.NoError(t, err)

	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, fallback.callCount())
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, ai.TierEconomy, result.Tier)
	assert.Equal(t, "fallback answer", result.BotMessage.Content)
}

func TestBothAttemptsFail(t *testing.T) {
	primary := &fakeBackend{name: "openai", err: providerDown("openai")}
	fallback := &fakeBackend{name: "anthropic", err: providerDown("anthropic")}
	registry := ai.NewRegistry(ai.TierEconomy)
	registry.Register(ai.TierStandard, primary, "gpt-4o")
	registry.Register(ai.TierEconomy, fallback, "claude-3-5-haiku-20241022")

	f := newFixture(t, model.PlanBusiness, registry)
	ctx := context.Background()

	_, err := f.engine.SubmitMessage(ctx, f.turn("Do you integrate with Slack?", ""))
	require.ErrorIs(t, err, ErrAIUnavailable)

	// Exactly one attempt per tier, no cascading.
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, fallback.callCount())

	// At-least-once user capture: the user message survived, no bot message.
	conversations, total, err := f.store.ListConversations(ctx, f.tenant.ID, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	messages, err := f.store.ListMessages(ctx, conversations[0].ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, model.SenderUser, messages[0].Sender)
}

func TestNoFallbackWhenPrimaryIsDefault(t *testing.T) {
	backend := &fakeBackend{name: "openai", err: providerDown("openai")}
	f := newFixture(t, model.PlanStarter, singleBackendRegistry(backend, "gpt-4o-mini"))

	_, err := f.engine.SubmitMessage(context.Background(), f.turn("hello", ""))
	require.ErrorIs(t, err, ErrAIUnavailable)
	assert.Equal(t, 1, backend.callCount())
}

func TestConversationLimitGatesBeforeProviderCall(t *testing.T) {
	backend := &fakeBackend{name: "openai", reply: "ok"}
	f := newFixture(t, model.PlanStarter, singleBackendRegistry(backend, "gpt-4o-mini"))
	ctx := context.Background()

	// Fill the starter plan's conversation quota for the month.
	limit := model.PlanLimits(model.PlanStarter).Conversations
	now := time.Now()
	for i := 0; i < limit; i++ {
		require.NoError(t, f.store.CreateConversation(ctx, &model.Conversation{
			ID:       uuid.Must(uuid.NewV7()).String(),
			TenantID: f.tenant.ID,
			UserID:   "anon",
			Status:   model.ConversationActive,
			CreatedAt: now, UpdatedAt: now,
		}))
	}

	_, err := f.engine.SubmitMessage(ctx, f.turn("hello", ""))
	var lee *usage.LimitExceededError
	require.ErrorAs(t, err, &lee)
	assert.Equal(t, usage.LimitConversations, lee.Status.Type)
	assert.Equal(t, limit, lee.Status.Used)

	// The adapter was never invoked and nothing was persisted.
	assert.Zero(t, backend.callCount())
	count, err := f.store.CountConversationsSince(ctx, f.tenant.ID, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, limit, count)
}

func TestConversationFromAnotherTenantIsNotFound(t *testing.T) {
	backend := &fakeBackend{name: "openai", reply: "ok"}
	f := newFixture(t, model.PlanStarter, singleBackendRegistry(backend, "gpt-4o-mini"))
	ctx := context.Background()
	now := time.Now()

	other := &model.Tenant{ID: uuid.NewString(), Name: "Rival", Plan: model.PlanStarter, Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.store.CreateTenant(ctx, other))
	foreign := &model.Conversation{
		ID: uuid.Must(uuid.NewV7()).String(), TenantID: other.ID, UserID: "u",
		Status: model.ConversationActive, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateConversation(ctx, foreign))

	_, err := f.engine.SubmitMessage(ctx, f.turn("hello", foreign.ID))
	require.ErrorIs(t, err, store.ErrNotFound)

	assert.Zero(t, backend.callCount())
	messages, err := f.store.ListMessages(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestClosedConversationRejected(t *testing.T) {
	backend := &fakeBackend{name: "openai", reply: "ok"}
	f := newFixture(t, model.PlanStarter, singleBackendRegistry(backend, "gpt-4o-mini"))
	ctx := context.Background()

	first, err := f.engine.SubmitMessage(ctx, f.turn("hello", ""))
	require.NoError(t, err)
	require.NoError(t, f.store.SetConversationStatus(ctx, f.tenant.ID, first.ConversationID, model.ConversationClosed))

	_, err = f.engine.SubmitMessage(ctx, f.turn("are you still there?", first.ConversationID))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestValidationRejectsBeforeSideEffects(t *testing.T) {
	backend := &fakeBackend{name: "openai", reply: "ok"}
	f := newFixture(t, model.PlanStarter, singleBackendRegistry(backend, "gpt-4o-mini"))
	ctx := context.Background()

	var validationErr *ValidationError

	_, err := f.engine.SubmitMessage(ctx, f.turn("", ""))
	require.ErrorAs(t, err, &validationErr)

	_, err = f.engine.SubmitMessage(ctx, f.turn("   ", ""))
	require.ErrorAs(t, err, &validationErr)

	_, err = f.engine.SubmitMessage(ctx, f.turn(strings.Repeat("a", 4001), ""))
	require.ErrorAs(t, err, &validationErr)

	assert.Zero(t, backend.callCount())
	_, total, err := f.store.ListConversations(ctx, f.tenant.ID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestInactiveChatbotIsNotFound(t *testing.T) {
	backend := &fakeBackend{name: "openai", reply: "ok"}
	f := newFixture(t, model.PlanStarter, singleBackendRegistry(backend, "gpt-4o-mini"))
	ctx := context.Background()
	now := time.Now()

	inactive := &model.Chatbot{
		ID: uuid.NewString(), TenantID: f.tenant.ID, Name: "Off",
		Active: false, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateChatbot(ctx, inactive))

	req := f.turn("hello", "")
	req.ChatbotID = inactive.ID
	_, err := f.engine.SubmitMessage(ctx, req)
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, backend.callCount())
}

// Concurrent turns on one conversation are not serialized; the invariant is
// that no message is lost or duplicated, not that processing order is.
func TestConcurrentTurnsDoNotCorruptConversation(t *testing.T) {
	backend := &fakeBackend{name: "openai", reply: "ok"}
	f := newFixture(t, model.PlanStarter, singleBackendRegistry(backend, "gpt-4o-mini"))
	ctx := context.Background()

	first, err := f.engine.SubmitMessage(ctx, f.turn("hello", ""))
	require.NoError(t, err)
	convID := first.ConversationID

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.SubmitMessage(ctx, f.turn(fmt.Sprintf("concurrent %d", i), convID))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}

	messages, err := f.store.ListMessages(ctx, convID)
	require.NoError(t, err)
	// 2 from the first turn plus a user/bot pair per worker.
	require.Len(t, messages, 2+2*workers)

	seen := make(map[string]bool, len(messages))
	var users, bots int
	for _, m := range messages {
		assert.False(t, seen[m.ID], "duplicate message id %s", m.ID)
		seen[m.ID] = true
		switch m.Sender {
		case model.SenderUser:
			users++
		case model.SenderBot:
			bots++
		}
	}
	assert.Equal(t, workers+1, users)
	assert.Equal(t, workers+1, bots)
}
