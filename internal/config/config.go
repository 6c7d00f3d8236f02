// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Database
	DatabaseDSN string

	// NATS fan-out (optional; disabled when URL is empty)
	NATSURL   string
	NATSToken string

	// JWT settings for the dashboard API
	JWTSecret string

	// Model providers
	OpenAIAPIKey    string
	AnthropicAPIKey string
	ProviderTimeout time.Duration
	MaxTokens       int
	Temperature     float64

	// Classifier tuning
	ComplexMinLength    int
	ComplexMinQuestions int
	MediumMinLength     int
	ComplexKeywords     []string

	// Rate limiting
	RateLimitRequests       int
	RateLimitWindow         time.Duration
	WidgetRateLimitRequests int

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Database
		DatabaseDSN: getEnv("DATABASE_DSN", "conversa.db"),

		// NATS
		NATSURL:   getEnv("NATS_URL", ""),
		NATSToken: getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Providers
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		ProviderTimeout: getDurationEnv("PROVIDER_TIMEOUT", 30*time.Second),
		MaxTokens:       getIntEnv("MAX_TOKENS", 1024),
		Temperature:     getFloatEnv("TEMPERATURE", 0.7),

		// Classifier
		ComplexMinLength:    getIntEnv("CLASSIFIER_COMPLEX_MIN_LENGTH", 200),
		ComplexMinQuestions: getIntEnv("CLASSIFIER_COMPLEX_MIN_QUESTIONS", 2),
		MediumMinLength:     getIntEnv("CLASSIFIER_MEDIUM_MIN_LENGTH", 50),
		ComplexKeywords:     getListEnv("CLASSIFIER_KEYWORDS", []string{"analyze", "compare", "evaluate", "explain in detail", "complex"}),

		// Rate limiting
		RateLimitRequests:       getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:         getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		WidgetRateLimitRequests: getIntEnv("WIDGET_RATE_LIMIT_REQUESTS", 20),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
