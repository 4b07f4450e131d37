package provider

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnsupportedModel is returned when no backend can serve a model name.
var ErrUnsupportedModel = errors.New("unsupported model")

// Capabilities declares what features the backend supports.
type Capabilities struct {
	// StructuredOutput indicates the backend can be constrained to a JSON
	// schema (response_format, forced tool use, response schema).
	StructuredOutput bool

	// MaxContextWindow is the maximum token count (0 = unknown/unlimited).
	MaxContextWindow int
}

// Request is the backend-facing request for one attempt.
type Request struct {
	Model       string   `json:"model"`
	System      string   `json:"system,omitempty"`
	Prompt      string   `json:"prompt"`
	Schema      *Schema  `json:"schema,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// Schema names a JSON schema the reply should conform to.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Definition  map[string]any `json:"definition"`
}

// Response is a backend's reply to one Request.
type Response struct {
	// Text is the raw reply text.
	Text string `json:"text"`

	// Structured is populated when the backend returned a reply that
	// decodes into the requested schema.
	Structured *CodeReply `json:"structured,omitempty"`

	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Usage holds token counts reported by the backend.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// CodeReply is the structured reply requested from backends.
type CodeReply struct {
	Name        string   `json:"name"`
	CodeSnippet string   `json:"code_snippet"`
	Deps        []string `json:"deps"`
}

// CodeReplySchema returns the JSON schema for CodeReply. Every property is
// required so the schema is accepted by strict structured output modes.
func CodeReplySchema() *Schema {
	return &Schema{
		Name:        "code_result",
		Description: "A Python script with its name and pip dependencies.",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "snake_case name for the script",
				},
				"code_snippet": map[string]any{
					"type":        "string",
					"description": "the complete Python source",
				},
				"deps": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "pip packages the script needs, empty when none",
				},
			},
			"required":             []string{"name", "code_snippet", "deps"},
			"additionalProperties": false,
		},
	}
}

// ParseCodeReply decodes text as a CodeReply. It returns nil unless text is
// a JSON object with a non-empty code_snippet.
func ParseCodeReply(text string) *CodeReply {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil
	}
	var reply CodeReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return nil
	}
	if reply.CodeSnippet == "" {
		return nil
	}
	return &reply
}
