// Package provider talks to the hosted text-generation APIs that simulate
// program execution.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"run-sphere/internal/config"
)

// ErrEmptyResponse is returned when the provider answered 2xx but produced
// no generated text.
var ErrEmptyResponse = errors.New("empty response from provider")

// Provider sends one prompt and returns the generated text.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d %s", e.Code, e.Status)
}

// New builds the provider selected by cfg.Kind. A nil client selects
// http.DefaultClient; deadlines come from the caller's context.
func New(cfg config.ProviderConfig, client *http.Client) (Provider, error) {
	if client == nil {
		client = http.DefaultClient
	}
	switch cfg.Kind {
	case "", "gemini":
		return NewGemini(cfg.BaseURL, cfg.Model, cfg.APIKey, client), nil
	case "openai":
		return NewOpenAI(cfg.BaseURL, cfg.Model, cfg.APIKey, client), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}
