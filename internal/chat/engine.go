// Package chat implements the conversation turn engine.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Env1ct/Conversa/internal/ai"
	"github.com/Env1ct/Conversa/internal/events"
	"github.com/Env1ct/Conversa/internal/model"
	"github.com/Env1ct/Conversa/internal/routing"
	"github.com/Env1ct/Conversa/internal/store"
	"github.com/Env1ct/Conversa/internal/usage"
	"github.com/Env1ct/Conversa/pkg/logger"
	"github.com/Env1ct/Conversa/pkg/metrics"
)

const (
	// historyLimit bounds the context window: the last N messages of the
	// conversation, oldest first.
	historyLimit = 10

	// maxContentLength rejects oversized inbound messages before persistence.
	maxContentLength = 4000
)

// Config holds engine tuning.
type Config struct {
	// ProviderTimeout bounds each backend attempt. Always set; a zero value
	// falls back to 30s.
	ProviderTimeout time.Duration
	MaxTokens       int
	Temperature     float64
}

func (c Config) withDefaults() Config {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 30 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	return c
}

// TurnRequest is one inbound chat message with its resolved tenant binding.
// The caller has already verified the widget and matched it to the tenant
// and chatbot.
type TurnRequest struct {
	TenantID  string
	WidgetID  string
	ChatbotID string

	// ConversationID continues an existing conversation when set; a new one
	// is created otherwise.
	ConversationID string
	// UserID is the opaque end-user identifier. Generated when empty.
	UserID string

	Content  string
	Metadata map[string]string
}

// TurnResult is the normalized outcome of a successful turn.
type TurnResult struct {
	ConversationID string         `json:"conversation_id"`
	UserMessage    *model.Message `json:"user_message"`
	BotMessage     *model.Message `json:"bot_message"`
	ModelUsed      string         `json:"model_used"`
	Tier           ai.Tier        `json:"tier"`
	FallbackUsed   bool           `json:"fallback_used"`
	LatencyMs      int64          `json:"latency_ms"`
	TokensIn       int            `json:"tokens_in,omitempty"`
	TokensOut      int            `json:"tokens_out,omitempty"`
	CostUSD        float64        `json:"cost_usd,omitempty"`
}

// Engine executes chat turns end to end: usage gating, conversation
// resolution, context assembly, model routing with single-level fallback, and
// transactional persistence of the exchange. Safe for concurrent use; turns
// on the same conversation are not serialized (see the package tests for the
// interleaving property this preserves).
type Engine struct {
	store      store.Store
	registry   *ai.Registry
	limiter    *usage.Limiter
	classifier *routing.Classifier
	publisher  events.Publisher
	logger     *logger.Logger
	cfg        Config
}

// NewEngine wires the engine's collaborators explicitly; there is no global
// state.
func NewEngine(
	st store.Store,
	registry *ai.Registry,
	limiter *usage.Limiter,
	classifier *routing.Classifier,
	publisher events.Publisher,
	log *logger.Logger,
	cfg Config,
) *Engine {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Engine{
		store:      st,
		registry:   registry,
		limiter:    limiter,
		classifier: classifier,
		publisher:  publisher,
		logger:     log,
		cfg:        cfg.withDefaults(),
	}
}

// SubmitMessage executes one chat turn. The user message is persisted before
// any backend call, so a turn that fails with ErrAIUnavailable leaves the
// conversation with the user message recorded and no bot message; resending
// is safe.
func (e *Engine) SubmitMessage(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if len(content) > maxContentLength {
		return nil, &ValidationError{Field: "content", Reason: fmt.Sprintf("exceeds %d characters", maxContentLength)}
	}

	tenant, err := e.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.Active {
		return nil, store.ErrNotFound
	}
	chatbot, err := e.store.GetChatbot(ctx, tenant.ID, req.ChatbotID)
	if err != nil {
		return nil, err
	}
	if !chatbot.Active {
		return nil, store.ErrNotFound
	}

	// Limits are checked before any persistence or provider call. The check
	// is an advisory read: concurrent turns near the cap can both pass.
	if err := e.checkLimits(ctx, tenant, req.ConversationID == ""); err != nil {
		return nil, err
	}

	conv, created, err := e.resolveConversation(ctx, tenant, req)
	if err != nil {
		return nil, err
	}
	log := e.logger.WithTurn(tenant.ID, conv.ID)

	// History is read before the user message is inserted so the context
	// window covers messages that preceded this turn.
	history, err := e.store.RecentMessages(ctx, conv.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	now := time.Now()
	userMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Sender:         model.SenderUser,
		Content:        content,
		CreatedAt:      now,
	}
	if err := e.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(tenant.ID, string(model.SenderUser)).Inc()
	if created {
		metrics.ConversationsTotal.WithLabelValues(tenant.ID).Inc()
	}

	genReq := e.buildRequest(tenant, chatbot, history, content)

	cx := e.classifier.Classify(content)
	tier := routing.Select(tenant.Plan, cx)

	resp, usedTier, fellBack, err := e.generate(ctx, tier, genReq)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues(tenant.ID, "ai_unavailable").Inc()
		log.Warn("turn failed, user message retained",
			zap.String("tier", string(tier)),
			zap.Error(err),
		)
		return nil, err
	}

	botMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Sender:         model.SenderBot,
		Content:        resp.Content,
		Model:          &resp.Model,
		TokensIn:       &resp.TokensIn,
		TokensOut:      &resp.TokensOut,
		LatencyMs:      &resp.LatencyMs,
		CostUSD:        &resp.CostUSD,
		CreatedAt:      time.Now(),
	}
	if err := e.store.AppendMessage(ctx, botMsg); err != nil {
		return nil, fmt.Errorf("persist bot message: %w", err)
	}
	if err := e.store.TouchConversation(ctx, conv.ID, botMsg.CreatedAt); err != nil {
		log.Warn("touch conversation failed", zap.Error(err))
	}

	metrics.MessagesTotal.WithLabelValues(tenant.ID, string(model.SenderBot)).Inc()
	metrics.TurnsTotal.WithLabelValues(tenant.ID, "ok").Inc()
	metrics.TurnDuration.WithLabelValues(string(usedTier)).Observe(float64(resp.LatencyMs) / 1000)

	result := &TurnResult{
		ConversationID: conv.ID,
		UserMessage:    userMsg,
		BotMessage:     botMsg,
		ModelUsed:      resp.Model,
		Tier:           usedTier,
		FallbackUsed:   fellBack,
		LatencyMs:      resp.LatencyMs,
		TokensIn:       resp.TokensIn,
		TokensOut:      resp.TokensOut,
		CostUSD:        resp.CostUSD,
	}

	// Fan-out to connected clients is best effort; the exchange is already
	// durable.
	if err := e.publisher.PublishTurn(ctx, &events.TurnEvent{
		TenantID:       tenant.ID,
		ConversationID: conv.ID,
		BotMessage:     *botMsg,
		ModelUsed:      resp.Model,
		FallbackUsed:   fellBack,
		LatencyMs:      resp.LatencyMs,
		CreatedAt:      botMsg.CreatedAt,
	}); err != nil {
		log.Warn("turn event publish failed", zap.Error(err))
	}

	log.Info("turn completed",
		zap.String("model", resp.Model),
		zap.String("tier", string(usedTier)),
		zap.Bool("fallback", fellBack),
		zap.Int64("latency_ms", resp.LatencyMs),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
	)
	return result, nil
}

func (e *Engine) checkLimits(ctx context.Context, tenant *model.Tenant, newConversation bool) error {
	types := []usage.LimitType{usage.LimitMessages}
	if newConversation {
		types = append(types, usage.LimitConversations)
	}
	for _, lt := range types {
		if err := e.limiter.Enforce(ctx, tenant, lt); err != nil {
			var lee *usage.LimitExceededError
			if errors.As(err, &lee) {
				metrics.LimitRejectionsTotal.WithLabelValues(tenant.ID, string(lt)).Inc()
				metrics.TurnsTotal.WithLabelValues(tenant.ID, "limit_exceeded").Inc()
			}
			return err
		}
	}
	return nil
}

// resolveConversation loads an existing conversation (which must belong to
// the requesting tenant) or creates a new active one bound to the widget and
// chatbot.
func (e *Engine) resolveConversation(ctx context.Context, tenant *model.Tenant, req *TurnRequest) (*model.Conversation, bool, error) {
	if req.ConversationID != "" {
		conv, err := e.store.GetConversation(ctx, tenant.ID, req.ConversationID)
		if err != nil {
			return nil, false, err
		}
		if conv.Status == model.ConversationClosed {
			return nil, false, &ValidationError{Field: "conversation_id", Reason: "conversation is closed"}
		}
		return conv, false, nil
	}

	userID := req.UserID
	if userID == "" {
		userID = "anon-" + uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenant.ID,
		WidgetID:  optional(req.WidgetID),
		ChatbotID: optional(req.ChatbotID),
		UserID:    userID,
		Status:    model.ConversationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	return conv, true, nil
}

// buildRequest assembles the canonical context: company framing plus the
// chatbot's system prompt, the bounded history oldest first, then the current
// message.
func (e *Engine) buildRequest(tenant *model.Tenant, chatbot *model.Chatbot, history []model.Message, content string) *ai.Request {
	var sb strings.Builder
	if prompt := strings.TrimSpace(chatbot.SystemPrompt); prompt != "" {
		sb.WriteString(prompt)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "You are answering on behalf of %s.", tenant.Name)

	messages := make([]ai.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		role := ai.RoleUser
		if m.Sender == model.SenderBot {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: content})

	return &ai.Request{
		SystemPrompt: sb.String(),
		Messages:     messages,
		MaxTokens:    e.cfg.MaxTokens,
		Temperature:  e.cfg.Temperature,
	}
}

// generate runs the explicit two-step attempt sequence: the selected tier,
// then exactly one retry against the fallback tier when the primary differs
// from it. At most two provider calls per turn.
func (e *Engine) generate(ctx context.Context, tier ai.Tier, req *ai.Request) (*ai.Response, ai.Tier, bool, error) {
	resp, primaryErr := e.invoke(ctx, tier, req)
	if primaryErr == nil {
		return resp, tier, false, nil
	}
	if !ai.IsProviderError(primaryErr) {
		return nil, tier, false, primaryErr
	}

	fallback := e.registry.Fallback()
	if tier == fallback {
		return nil, tier, false, fmt.Errorf("%w: %v", ErrAIUnavailable, primaryErr)
	}

	metrics.ModelFallbacksTotal.Inc()
	resp, fallbackErr := e.invoke(ctx, fallback, req)
	if fallbackErr != nil {
		return nil, fallback, true, fmt.Errorf("%w: primary: %v; fallback: %v", ErrAIUnavailable, primaryErr, fallbackErr)
	}
	return resp, fallback, true, nil
}

// invoke resolves a tier and calls its backend under the configured timeout.
// Latency is wall clock around the attempt and is attributed to the model
// that served it.
func (e *Engine) invoke(ctx context.Context, tier ai.Tier, req *ai.Request) (*ai.Response, error) {
	route, err := e.registry.Resolve(tier)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	resp, err := route.Backend.Generate(callCtx, route.Model, req)
	if err != nil {
		metrics.RecordModelCall(route.Backend.Name(), route.Model, "error", 0, 0, 0)
		return nil, err
	}
	resp.LatencyMs = time.Since(start).Milliseconds()
	metrics.RecordModelCall(route.Backend.Name(), route.Model, "success", resp.TokensIn, resp.TokensOut, resp.CostUSD)
	return resp, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
