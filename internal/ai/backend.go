// Package ai provides model backend adapters behind a uniform contract.
package ai

import (
	"context"
	"errors"
	"fmt"
)

// Tier is an abstract model class the selector routes to. Which concrete
// provider model serves a tier is registry configuration.
type Tier string

const (
	TierEconomy     Tier = "economy"
	TierStandard    Tier = "standard"
	TierPremiumFast Tier = "premium-fast"
	TierPremiumDeep Tier = "premium-deep"
)

// ChatMessage is one turn of canonical context in provider-neutral form.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is the canonical generation request: system prompt plus ordered
// history ending with the current user message.
type Request struct {
	SystemPrompt string
	Messages     []ChatMessage
	MaxTokens    int
	Temperature  float64
}

// Response is the normalized result every adapter returns. Providers that do
// not report token usage leave the counts at zero with a zero cost estimate.
type Response struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
	CostUSD   float64
	LatencyMs int64
}

// Backend is the capability interface implemented once per provider.
// Implementations are safe for concurrent use; client handles are long-lived
// and stateless per call.
type Backend interface {
	// Generate translates the canonical request into the provider's wire
	// format, invokes it, and returns a normalized response. Failures are
	// always *ProviderError.
	Generate(ctx context.Context, model string, req *Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrTimeout     ErrorKind = "timeout"
	ErrQuota       ErrorKind = "quota"
	ErrAuth        ErrorKind = "auth"
	ErrMalformed   ErrorKind = "malformed"
	ErrUnavailable ErrorKind = "unavailable"
)

// ProviderError is the only error type adapters surface. Nothing
// provider-specific leaks past the adapter boundary.
type ProviderError struct {
	Provider string
	Model    string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", e.Provider, e.Model, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// kindFromContext maps context cancellation into the timeout kind so bounded
// adapter deadlines surface the same way as provider-side timeouts.
func kindFromContext(err error) (ErrorKind, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout, true
	case errors.Is(err, context.Canceled):
		return ErrTimeout, true
	}
	return "", false
}

// kindFromStatus maps an HTTP status code from a provider API to an ErrorKind.
func kindFromStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 429:
		return ErrQuota
	case status == 408:
		return ErrTimeout
	case status >= 500:
		return ErrUnavailable
	default:
		return ErrMalformed
	}
}
