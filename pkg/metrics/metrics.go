// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnsTotal tracks chat turns by terminal status.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Total chat turns processed",
		},
		[]string{"tenant_id", "status"},
	)

	// TurnDuration tracks end-to-end turn latency.
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_turn_duration_seconds",
			Help:    "End-to-end chat turn duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"tier"},
	)

	// ModelRequestsTotal tracks provider invocations.
	ModelRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_requests_total",
			Help: "Total model backend invocations",
		},
		[]string{"provider", "model", "status"},
	)

	// ModelFallbacksTotal tracks turns that fell back to the default tier.
	ModelFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_fallbacks_total",
			Help: "Turns served by the fallback tier after a primary failure",
		},
	)

	// ModelTokensTotal tracks tokens by direction.
	ModelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_tokens_total",
			Help: "Total model tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ModelCostUSD accumulates estimated spend per model.
	ModelCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_cost_usd_total",
			Help: "Estimated model spend in USD",
		},
		[]string{"model"},
	)

	// LimitRejectionsTotal tracks turns rejected by the usage limiter.
	LimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limit_rejections_total",
			Help: "Turns rejected because a plan limit was reached",
		},
		[]string{"tenant_id", "limit_type"},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"tenant_id"},
	)

	// MessagesTotal tracks messages persisted.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"tenant_id", "sender"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordModelCall records one provider invocation.
func RecordModelCall(provider, model, status string, tokensIn, tokensOut int, costUSD float64) {
	ModelRequestsTotal.WithLabelValues(provider, model, status).Inc()
	if tokensIn > 0 {
		ModelTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		ModelTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
	}
	if costUSD > 0 {
		ModelCostUSD.WithLabelValues(model).Add(costUSD)
	}
}
