// Package factory builds a provider.Provider from configuration. Model
// family selection happens here and nowhere else.
package factory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rhuss/aython/pkg/provider"
	"github.com/rhuss/aython/pkg/provider/anthropic"
	"github.com/rhuss/aython/pkg/provider/gemini"
	"github.com/rhuss/aython/pkg/provider/openai"
	"github.com/rhuss/aython/pkg/provider/openaicompat"
)

// Backend names accepted by New.
const (
	BackendAuto             = "auto"
	BackendOpenAI           = "openai"
	BackendAnthropic        = "anthropic"
	BackendGemini           = "gemini"
	BackendOpenAICompatible = "openai-compatible"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is one of the Backend* constants. Empty means auto.
	Backend string

	// Model is used by auto to infer the backend.
	Model string

	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int

	// ModelMapping and StructuredOutput only apply to openai-compatible.
	ModelMapping     map[string]string
	StructuredOutput bool
}

// InferBackend maps a model name to a backend.
func InferBackend(model string) (string, error) {
	m := strings.ToLower(strings.TrimPrefix(model, gemini.ModelPrefix))
	switch {
	case strings.Contains(m, "gemini"):
		return BackendGemini, nil
	case strings.Contains(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return BackendOpenAI, nil
	case strings.Contains(m, "claude"):
		return BackendAnthropic, nil
	default:
		return "", fmt.Errorf("%w: %q, use a Gemini, GPT or Claude model or set an explicit backend",
			provider.ErrUnsupportedModel, model)
	}
}

// Resolve returns the concrete backend for cfg, inferring it from the
// model when Backend is empty or auto.
func Resolve(cfg Config) (string, error) {
	switch cfg.Backend {
	case "", BackendAuto:
		return InferBackend(cfg.Model)
	case BackendOpenAI, BackendAnthropic, BackendGemini, BackendOpenAICompatible:
		return cfg.Backend, nil
	default:
		return "", fmt.Errorf("unknown provider backend %q", cfg.Backend)
	}
}

// New builds the provider selected by cfg.
func New(ctx context.Context, cfg Config) (provider.Provider, error) {
	backend, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendOpenAI:
		return openai.New(openai.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	case BackendAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	case BackendGemini:
		p, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		return p, nil
	default:
		p, err := openaicompat.New(openaicompat.Config{
			BaseURL:          cfg.BaseURL,
			APIKey:           cfg.APIKey,
			Timeout:          cfg.Timeout,
			ModelMapping:     cfg.ModelMapping,
			StructuredOutput: cfg.StructuredOutput,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
