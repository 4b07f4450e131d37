// Package anthropic implements a generation backend on the Anthropic Go SDK.
//
// Claude has no response-format switch, so structured replies are obtained
// by forcing a single tool call whose input schema is the requested schema.
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/provider"
)

// defaultMaxTokens is used when the request does not set MaxTokens;
// the Messages API requires a value.
const defaultMaxTokens = 4096

// Config holds configuration for the Anthropic backend.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Provider calls the Anthropic Messages API.
type Provider struct {
	client anthropic.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates an Anthropic backend. An empty APIKey falls back to the SDK's
// ANTHROPIC_API_KEY lookup.
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
	return &Provider{client: anthropic.NewClient(opts...)}, nil
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "anthropic" }

// Capabilities implements provider.Provider.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{StructuredOutput: true, MaxContextWindow: 200000}
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	if req.Schema != nil {
		params.Tools = []anthropic.ToolUnionParam{{OfTool: schemaTool(req.Schema)}}
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Schema.Name},
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &provider.Response{
		Model: string(msg.Model),
		Usage: provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			input := string(block.Input)
			if reply := provider.ParseCodeReply(input); reply != nil {
				resp.Structured = reply
			}
			if text.Len() == 0 {
				text.WriteString(input)
			}
		}
	}
	resp.Text = text.String()
	if resp.Structured == nil {
		resp.Structured = provider.ParseCodeReply(resp.Text)
	}
	return resp, nil
}

// Close implements provider.Provider.
func (p *Provider) Close() error { return nil }

func schemaTool(s *provider.Schema) *anthropic.ToolParam {
	props := s.Definition["properties"]
	var required []string
	if r, ok := s.Definition["required"].([]string); ok {
		required = r
	}
	return &anthropic.ToolParam{
		Name:        s.Name,
		Description: anthropic.String(s.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: props,
			Required:   required,
		},
	}
}

func mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return provider.StatusError(apiErr.StatusCode, "")
	}
	return api.NewServerError("backend connection error: " + err.Error())
}
