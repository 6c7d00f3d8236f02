package model

import (
	"time"
)

// Chatbot is a configured AI persona owned by a tenant.
type Chatbot struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Name           string    `json:"name"`
	ModelTier      string    `json:"model_tier"`
	SystemPrompt   string    `json:"system_prompt"`
	WelcomeMessage string    `json:"welcome_message"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Widget is the embeddable front-end configuration bound to one chatbot.
// It is the entry point that supplies chatbot/tenant context to a turn.
type Widget struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ChatbotID      string    `json:"chatbot_id"`
	Title          string    `json:"title"`
	PrimaryColor   string    `json:"primary_color"`
	Position       string    `json:"position"`
	AllowedDomains []string  `json:"allowed_domains,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AllowsDomain reports whether the widget may be embedded on the given
// origin host. An empty allow-list permits every domain.
func (w *Widget) AllowsDomain(host string) bool {
	if len(w.AllowedDomains) == 0 {
		return true
	}
	for _, d := range w.AllowedDomains {
		if d == host {
			return true
		}
	}
	return false
}

// WidgetConfig is the public bootstrap payload served to the embed script.
type WidgetConfig struct {
	WidgetID       string `json:"widget_id"`
	Title          string `json:"title"`
	PrimaryColor   string `json:"primary_color"`
	Position       string `json:"position"`
	WelcomeMessage string `json:"welcome_message"`
}
