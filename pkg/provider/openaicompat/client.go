package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/provider"
)

// Client performs HTTP requests against an OpenAI-compatible Chat Completions
// backend and implements provider.Provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	name       string
	caps       provider.Capabilities

	// ModelMapper is an optional function that transforms the model name
	// before sending it to the backend. If nil, the model name is used as-is.
	ModelMapper func(string) string
}

// Ensure Client implements provider.Provider.
var _ provider.Provider = (*Client)(nil)

// NewClient creates a new Client for an OpenAI-compatible backend.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	// Normalize: remove trailing slash and an explicit /v1 suffix.
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		name:    "openai-compatible",
	}
}

// New creates a Client from a Config.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("openaicompat: base URL is required")
	}
	c := NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if cfg.Name != "" {
		c.name = cfg.Name
	}
	c.caps = provider.Capabilities{StructuredOutput: cfg.StructuredOutput}
	if len(cfg.ModelMapping) > 0 {
		mapping := make(map[string]string, len(cfg.ModelMapping))
		for k, v := range cfg.ModelMapping {
			mapping[k] = v
		}
		c.ModelMapper = func(model string) string {
			if mapped, ok := mapping[model]; ok {
				return mapped
			}
			return model
		}
	}
	return c, nil
}

// Name implements provider.Provider.
func (c *Client) Name() string { return c.name }

// Capabilities implements provider.Provider.
func (c *Client) Capabilities() provider.Capabilities { return c.caps }

// Complete performs non-streaming inference against the Chat Completions endpoint.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req

	// Apply model mapping if configured.
	if c.ModelMapper != nil {
		reqCopy.Model = c.ModelMapper(reqCopy.Model)
	}

	// Only send a response_format the backend claims to understand.
	if !c.caps.StructuredOutput {
		reqCopy.Schema = nil
	}

	chatReq := TranslateToChat(&reqCopy)

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	return TranslateResponse(&chatResp)
}

// ListModels returns available models from the backend by querying
// the /v1/models endpoint.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	url := c.baseURL + "/v1/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var modelsResp ChatModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modelsResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse models response: %s", err.Error()))
	}

	models := make([]string, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
