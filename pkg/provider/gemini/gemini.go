// Package gemini implements a generation backend on the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/provider"
)

// ModelPrefix is the resource prefix Gemini model names are normalized to.
const ModelPrefix = "models/"

// Config holds configuration for the Gemini backend.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Provider calls the Gemini generateContent API.
type Provider struct {
	client *genai.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Gemini backend. An empty APIKey falls back to the SDK's
// GOOGLE_API_KEY / GEMINI_API_KEY lookup.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		cc.HTTPOptions.Timeout = &timeout
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client}, nil
}

// NormalizeModel adds the "models/" prefix Gemini resource names carry.
func NormalizeModel(model string) string {
	if strings.HasPrefix(model, ModelPrefix) {
		return model
	}
	return ModelPrefix + model
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "gemini" }

// Capabilities implements provider.Provider.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{StructuredOutput: true, MaxContextWindow: 1000000}
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toSchema(req.Schema.Definition)
	}

	result, err := p.client.Models.GenerateContent(ctx, NormalizeModel(req.Model), genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, mapError(err)
	}
	if len(result.Candidates) == 0 {
		return nil, api.NewModelError("backend returned no candidates")
	}

	text := result.Text()
	resp := &provider.Response{
		Text:       text,
		Structured: provider.ParseCodeReply(text),
		Model:      result.ModelVersion,
	}
	if u := result.UsageMetadata; u != nil {
		resp.Usage = provider.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

// Close implements provider.Provider.
func (p *Provider) Close() error { return nil }

// toSchema converts the JSON schema subset used by provider.CodeReplySchema
// (objects, arrays, strings) into a genai.Schema.
func toSchema(def map[string]any) *genai.Schema {
	s := &genai.Schema{}
	if desc, ok := def["description"].(string); ok {
		s.Description = desc
	}
	switch def["type"] {
	case "object":
		s.Type = genai.TypeObject
		if props, ok := def["properties"].(map[string]any); ok {
			s.Properties = make(map[string]*genai.Schema, len(props))
			for name, raw := range props {
				if sub, ok := raw.(map[string]any); ok {
					s.Properties[name] = toSchema(sub)
				}
			}
		}
		if req, ok := def["required"].([]string); ok {
			s.Required = req
		}
	case "array":
		s.Type = genai.TypeArray
		if items, ok := def["items"].(map[string]any); ok {
			s.Items = toSchema(items)
		}
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		s.Type = genai.TypeString
	}
	return s
}

func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return provider.StatusError(apiErr.Code, apiErr.Message)
	}
	return api.NewServerError("backend connection error: " + err.Error())
}
