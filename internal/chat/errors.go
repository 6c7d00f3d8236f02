package chat

import (
	"errors"
	"fmt"
)

// ErrAIUnavailable means every allowed backend attempt for the turn failed.
// The user message is already persisted; the caller should show a generic
// fallback message and let the user resend.
var ErrAIUnavailable = errors.New("ai unavailable")

// ValidationError rejects malformed input before any side effects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
