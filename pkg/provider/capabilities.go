package provider

import (
	"strings"

	"github.com/rhuss/aython/pkg/api"
)

// ValidateRequest checks whether the given request is compatible with the
// provider's declared capabilities. Returns an APIError identifying the
// problem, or nil if the request is compatible.
func ValidateRequest(caps Capabilities, req *Request) *api.APIError {
	if strings.TrimSpace(req.Prompt) == "" {
		return api.NewInvalidRequestError("prompt", "prompt must not be empty")
	}

	if req.Schema != nil && !caps.StructuredOutput {
		return api.NewInvalidRequestError("schema",
			"the configured provider does not support structured output")
	}

	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return api.NewInvalidRequestError("max_tokens", "max_tokens must be positive")
	}

	if req.Temperature != nil && (*req.Temperature < 0.0 || *req.Temperature > 2.0) {
		return api.NewInvalidRequestError("temperature", "temperature must be between 0.0 and 2.0")
	}

	return nil
}
