// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Env1ct/Conversa/internal/ai"
	"github.com/Env1ct/Conversa/internal/chat"
	"github.com/Env1ct/Conversa/internal/config"
	"github.com/Env1ct/Conversa/internal/events"
	"github.com/Env1ct/Conversa/internal/handler"
	"github.com/Env1ct/Conversa/internal/middleware"
	"github.com/Env1ct/Conversa/internal/routing"
	"github.com/Env1ct/Conversa/internal/store"
	"github.com/Env1ct/Conversa/internal/usage"
	"github.com/Env1ct/Conversa/pkg/logger"
	"github.com/Env1ct/Conversa/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "conversa", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Storage
	st, err := store.NewSQLite(cfg.DatabaseDSN)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.Error("failed to migrate store", zap.Error(err))
		os.Exit(1)
	}

	// Model backends
	registry, err := buildRegistry(cfg, log)
	if err != nil {
		log.Error("failed to build model registry", zap.Error(err))
		os.Exit(1)
	}

	// Real-time fan-out
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsPub, err := events.Connect(events.Config{URL: cfg.NATSURL, Token: cfg.NATSToken}, log)
		if err != nil {
			log.Warn("NATS unavailable, turn fan-out disabled", zap.Error(err))
		} else {
			publisher = natsPub
			defer natsPub.Close()
		}
	}

	// Core
	limiter := usage.NewLimiter(st)
	classifier := routing.NewClassifier(routing.ClassifierConfig{
		ComplexMinLength:    cfg.ComplexMinLength,
		ComplexMinQuestions: cfg.ComplexMinQuestions,
		MediumMinLength:     cfg.MediumMinLength,
		Keywords:            cfg.ComplexKeywords,
	})
	engine := chat.NewEngine(st, registry, limiter, classifier, publisher, log, chat.Config{
		ProviderTimeout: cfg.ProviderTimeout,
		MaxTokens:       cfg.MaxTokens,
		Temperature:     cfg.Temperature,
	})

	// Handlers
	healthHandler := handler.NewHealthHandler(st)
	widgetHandler := handler.NewWidgetHandler(engine, st, log)
	conversationHandler := handler.NewConversationHandler(st, limiter, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Public embed surface, scoped by widget ID and the widget's domain
	// allow-list.
	r.Route("/widget/v1/{widgetID}", func(r chi.Router) {
		r.Use(middleware.WidgetRateLimit(cfg.WidgetRateLimitRequests, cfg.RateLimitWindow))

		r.Get("/config", widgetHandler.Config)
		r.Post("/messages", widgetHandler.SendMessage)
		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Get("/messages", widgetHandler.ListMessages)
			r.Post("/close", widgetHandler.CloseConversation)
		})
	})

	// Dashboard API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/conversations", conversationHandler.List)
		r.Get("/conversations/{id}", conversationHandler.Get)
		r.Get("/usage", conversationHandler.Usage)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// buildRegistry wires abstract tiers to concrete provider models. With both
// providers configured, economy and standard tiers go to OpenAI and the
// premium tiers to Anthropic; with one provider, all tiers route to it.
func buildRegistry(cfg *config.Config, log *logger.Logger) (*ai.Registry, error) {
	registry := ai.NewRegistry(ai.TierEconomy)

	var openAI ai.Backend
	if cfg.OpenAIAPIKey != "" {
		backend, err := ai.NewOpenAIBackend(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		openAI = backend
	}
	var anthropic ai.Backend
	if cfg.AnthropicAPIKey != "" {
		backend, err := ai.NewAnthropicBackend(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		anthropic = backend
	}

	switch {
	case openAI != nil && anthropic != nil:
		registry.Register(ai.TierEconomy, openAI, "gpt-4o-mini")
		registry.Register(ai.TierStandard, openAI, "gpt-4o")
		registry.Register(ai.TierPremiumFast, anthropic, "claude-3-5-haiku-20241022")
		registry.Register(ai.TierPremiumDeep, anthropic, "claude-3-5-sonnet-20241022")
	case openAI != nil:
		log.Warn("Anthropic not configured, premium tiers served by OpenAI")
		registry.Register(ai.TierEconomy, openAI, "gpt-4o-mini")
		registry.Register(ai.TierStandard, openAI, "gpt-4o")
		registry.Register(ai.TierPremiumFast, openAI, "gpt-4o")
		registry.Register(ai.TierPremiumDeep, openAI, "gpt-4o")
	case anthropic != nil:
		log.Warn("OpenAI not configured, all tiers served by Anthropic")
		registry.Register(ai.TierEconomy, anthropic, "claude-3-5-haiku-20241022")
		registry.Register(ai.TierStandard, anthropic, "claude-3-5-haiku-20241022")
		registry.Register(ai.TierPremiumFast, anthropic, "claude-3-5-haiku-20241022")
		registry.Register(ai.TierPremiumDeep, anthropic, "claude-3-5-sonnet-20241022")
	default:
		return nil, errors.New("no model provider configured: set OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}

	return registry, nil
}
