// Package usage computes current-period usage against tenant plan limits.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/Env1ct/Conversa/internal/model"
	"github.com/Env1ct/Conversa/internal/store"
)

// LimitType names a gated resource.
type LimitType string

const (
	LimitConversations LimitType = "conversations"
	LimitMessages      LimitType = "messages"
)

// Status is the result of a limit check.
type Status struct {
	Type     LimitType `json:"type"`
	Used     int       `json:"used"`
	Limit    int       `json:"limit"`
	Exceeded bool      `json:"exceeded"`
}

// LimitExceededError carries the usage snapshot for client-side messaging.
type LimitExceededError struct {
	Status Status
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded (%d/%d)", e.Status.Type, e.Status.Used, e.Status.Limit)
}

// Limiter checks tenant usage over the current UTC calendar month.
// Checks are advisory reads with no atomic reservation: two concurrent turns
// near the cap can both pass, so the limit is soft under concurrency. Exact
// enforcement would need an increment-if-below primitive at the storage layer.
type Limiter struct {
	store store.Store

	// now is swappable for window tests.
	now func() time.Time
}

// NewLimiter creates a limiter backed by the given store.
func NewLimiter(st store.Store) *Limiter {
	return &Limiter{store: st, now: time.Now}
}

// monthStart returns the start of the current calendar month in UTC.
func (l *Limiter) monthStart() time.Time {
	now := l.now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Check returns the tenant's usage status for one limit type. A limit <= 0
// means unlimited and is never exceeded.
func (l *Limiter) Check(ctx context.Context, tenant *model.Tenant, lt LimitType) (Status, error) {
	limits := tenant.Limits()

	var limit int
	switch lt {
	case LimitConversations:
		limit = limits.Conversations
	case LimitMessages:
		limit = limits.Messages
	default:
		return Status{}, fmt.Errorf("unknown limit type %q", lt)
	}

	status := Status{Type: lt, Limit: limit}
	if limit <= 0 {
		return status, nil
	}

	since := l.monthStart()
	var used int
	var err error
	switch lt {
	case LimitConversations:
		used, err = l.store.CountConversationsSince(ctx, tenant.ID, since)
	case LimitMessages:
		used, err = l.store.CountMessagesSince(ctx, tenant.ID, since)
	}
	if err != nil {
		return Status{}, fmt.Errorf("count %s: %w", lt, err)
	}

	status.Used = used
	status.Exceeded = used >= limit
	return status, nil
}

// Enforce runs Check and converts an exceeded status into a
// *LimitExceededError.
func (l *Limiter) Enforce(ctx context.Context, tenant *model.Tenant, lt LimitType) error {
	status, err := l.Check(ctx, tenant, lt)
	if err != nil {
		return err
	}
	if status.Exceeded {
		return &LimitExceededError{Status: status}
	}
	return nil
}

// Snapshot returns the usage status for every gated limit type.
func (l *Limiter) Snapshot(ctx context.Context, tenant *model.Tenant) ([]Status, error) {
	out := make([]Status, 0, 2)
	for _, lt := range []LimitType{LimitConversations, LimitMessages} {
		status, err := l.Check(ctx, tenant, lt)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}
