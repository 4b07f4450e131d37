// Package openai implements a generation backend on the official OpenAI Go
// SDK. Structured replies use the json_schema response format in strict mode.
package openai

import (
	"context"
	"errors"
	"time"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/provider"
)

// Config holds configuration for the OpenAI backend.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Provider calls the OpenAI Chat Completions API.
type Provider struct {
	client oai.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates an OpenAI backend. An empty APIKey falls back to the SDK's
// OPENAI_API_KEY lookup.
func New(cfg Config) (*Provider, error) {
	opts := []option.RequestOption{
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Provider{client: oai.NewClient(opts...)}, nil
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "openai" }

// Capabilities implements provider.Provider.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{StructuredOutput: true, MaxContextWindow: 128000}
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
	}
	if req.System != "" {
		params.Messages = append(params.Messages, oai.SystemMessage(req.System))
	}
	params.Messages = append(params.Messages, oai.UserMessage(req.Prompt))

	if req.Temperature != nil {
		params.Temperature = oai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = oai.Int(int64(*req.MaxTokens))
	}
	if req.Schema != nil {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.Schema.Name,
					Description: oai.String(req.Schema.Description),
					Schema:      req.Schema.Definition,
					Strict:      oai.Bool(true),
				},
			},
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, api.NewModelError("backend returned no choices")
	}

	msg := completion.Choices[0].Message
	if msg.Refusal != "" {
		return nil, api.NewModelError("model refused: " + msg.Refusal)
	}

	return &provider.Response{
		Text:       msg.Content,
		Structured: provider.ParseCodeReply(msg.Content),
		Model:      completion.Model,
		Usage: provider.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}, nil
}

// Close implements provider.Provider.
func (p *Provider) Close() error { return nil }

func mapError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return provider.StatusError(apiErr.StatusCode, apiErr.Message)
	}
	return api.NewServerError("backend connection error: " + err.Error())
}
