package ai

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicBackend generates completions via the Anthropic messages API.
type AnthropicBackend struct {
	client *anthropic.Client
}

// NewAnthropicBackend creates an Anthropic backend.
func NewAnthropicBackend(apiKey string) (*AnthropicBackend, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	return &AnthropicBackend{client: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

// Name returns the provider name.
func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

// Generate sends a completion request.
func (b *AnthropicBackend) Generate(ctx context.Context, model string, req *Request) (*Response, error) {
	start := time.Now()

	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	messages := make([]anthropic.MessageParam, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(model),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	}
	if req.SystemPrompt != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(req.SystemPrompt),
		}})
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, b.wrapError(model, err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}
	if content == "" {
		return nil, &ProviderError{
			Provider: b.Name(), Model: model, Kind: ErrMalformed,
			Err: errors.New("response contained no text blocks"),
		}
	}

	tokensIn := int(resp.Usage.InputTokens)
	tokensOut := int(resp.Usage.OutputTokens)

	return &Response{
		Content:   content,
		Model:     resp.Model,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostUSD:   EstimateCost(model, tokensIn, tokensOut),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (b *AnthropicBackend) wrapError(model string, err error) *ProviderError {
	pe := &ProviderError{Provider: b.Name(), Model: model, Err: err}

	if kind, ok := kindFromContext(err); ok {
		pe.Kind = kind
		return pe
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe.Kind = kindFromStatus(apiErr.StatusCode)
		return pe
	}

	pe.Kind = ErrUnavailable
	return pe
}
