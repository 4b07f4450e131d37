package openaicompat

import "time"

// Config holds configuration for an OpenAI-compatible backend.
type Config struct {
	// Name identifies the backend in logs and metrics. Defaults to
	// "openai-compatible".
	Name string

	// BaseURL is the server URL without the /v1 suffix
	// (e.g., "http://localhost:8000").
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout for individual HTTP requests. Defaults to 120s.
	Timeout time.Duration

	// ModelMapping maps requested model names to backend model identifiers.
	// For example: {"gpt-4o-mini": "openai/gpt-4o-mini"}. Models missing
	// from the map are passed through unchanged.
	ModelMapping map[string]string

	// StructuredOutput advertises json_schema response format support.
	// Servers without it still work; the engine then asks for JSON in the
	// prompt only.
	StructuredOutput bool
}
