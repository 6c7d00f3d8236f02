package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIBackend generates completions via the OpenAI chat API.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend creates an OpenAI backend.
func NewOpenAIBackend(apiKey string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return &OpenAIBackend{client: openai.NewClient(apiKey)}, nil
}

// Name returns the provider name.
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// Generate sends a completion request.
func (b *OpenAIBackend) Generate(ctx context.Context, model string, req *Request) (*Response, error) {
	start := time.Now()

	if model == "" {
		model = "gpt-4o-mini"
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	// System prompt travels as the leading system-role message.
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, b.wrapError(model, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			Provider: b.Name(), Model: model, Kind: ErrMalformed,
			Err: errors.New("response contained no choices"),
		}
	}

	tokensIn := resp.Usage.PromptTokens
	tokensOut := resp.Usage.CompletionTokens
	cost := EstimateCost(model, tokensIn, tokensOut)
	if tokensIn == 0 && tokensOut == 0 && resp.Usage.TotalTokens > 0 {
		cost = EstimateCostBlended(model, resp.Usage.TotalTokens)
	}

	return &Response{
		Content:   resp.Choices[0].Message.Content,
		Model:     resp.Model,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostUSD:   cost,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (b *OpenAIBackend) wrapError(model string, err error) *ProviderError {
	pe := &ProviderError{Provider: b.Name(), Model: model, Err: err}

	if kind, ok := kindFromContext(err); ok {
		pe.Kind = kind
		return pe
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe.Kind = kindFromStatus(apiErr.HTTPStatusCode)
		return pe
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		pe.Kind = kindFromStatus(reqErr.HTTPStatusCode)
		return pe
	}

	pe.Kind = ErrUnavailable
	return pe
}
