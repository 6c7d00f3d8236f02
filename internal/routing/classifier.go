// Package routing scores inbound messages and picks a model tier for them.
package routing

import (
	"strings"
)

// Complexity is the coarse tier a message is scored into.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// ClassifierConfig holds the classifier's tuning constants. They are plain
// configuration so thresholds and keywords can change without touching the
// classification logic.
type ClassifierConfig struct {
	// ComplexMinLength: messages longer than this are complex.
	ComplexMinLength int
	// ComplexMinQuestions: more question marks than this means complex.
	ComplexMinQuestions int
	// MediumMinLength: messages longer than this are at least medium.
	MediumMinLength int
	// Keywords that indicate analytical intent, matched case-insensitively.
	Keywords []string
}

// DefaultClassifierConfig returns the production tuning.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ComplexMinLength:    200,
		ComplexMinQuestions: 2,
		MediumMinLength:     50,
		Keywords:            []string{"analyze", "compare", "evaluate", "explain in detail", "complex"},
	}
}

// Classifier scores message complexity from textual heuristics.
// Pure and deterministic; no I/O.
type Classifier struct {
	cfg      ClassifierConfig
	keywords []string
}

// NewClassifier creates a classifier from the given config.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	lowered := make([]string, len(cfg.Keywords))
	for i, k := range cfg.Keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Classifier{cfg: cfg, keywords: lowered}
}

// Classify returns the complexity tier for a message. The empty string is
// simple.
func (c *Classifier) Classify(message string) Complexity {
	length := len(message)
	questions := strings.Count(message, "?")

	if length > c.cfg.ComplexMinLength || questions > c.cfg.ComplexMinQuestions || c.hasKeyword(message) {
		return ComplexityComplex
	}
	if length > c.cfg.MediumMinLength || questions > 0 {
		return ComplexityMedium
	}
	return ComplexitySimple
}

func (c *Classifier) hasKeyword(message string) bool {
	lowered := strings.ToLower(message)
	for _, k := range c.keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}
