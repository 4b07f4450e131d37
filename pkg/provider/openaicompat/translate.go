package openaicompat

import (
	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/provider"
)

// TranslateToChat converts a provider.Request into a ChatCompletionRequest
// suitable for the /v1/chat/completions endpoint.
func TranslateToChat(req *provider.Request) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		N:           1,
	}

	if req.System != "" {
		cr.Messages = append(cr.Messages, ChatMessage{Role: "system", Content: req.System})
	}
	cr.Messages = append(cr.Messages, ChatMessage{Role: "user", Content: req.Prompt})

	if req.Schema != nil {
		cr.ResponseFormat = &ResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchemaSpec{
				Name:        req.Schema.Name,
				Description: req.Schema.Description,
				Schema:      req.Schema.Definition,
				Strict:      true,
			},
		}
	}

	return cr
}

// TranslateResponse converts a ChatCompletionResponse into a provider.Response.
// It uses only choices[0]. A response without choices, or one cut off by a
// content filter, is reported as a model error.
func TranslateResponse(resp *ChatCompletionResponse) (*provider.Response, error) {
	pr := &provider.Response{
		Model: resp.Model,
	}

	if resp.Usage != nil {
		pr.Usage = provider.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}

	if len(resp.Choices) == 0 {
		return nil, api.NewModelError("backend returned no choices")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, api.NewModelError("backend response was blocked by a content filter")
	}

	pr.Text = ExtractContentString(choice.Message.Content)
	pr.Structured = provider.ParseCodeReply(pr.Text)
	return pr, nil
}

// ExtractContentString attempts to get a plain string from the message content.
// The content field in Chat Completions can be a string, a list of text
// parts, or nil.
func ExtractContentString(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var out string
		for _, part := range v {
			m, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				out += text
			}
		}
		return out
	default:
		return ""
	}
}
