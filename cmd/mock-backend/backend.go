package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

// Reply shapes.
const (
	modeJSON    = "json"
	modeFenced  = "fenced"
	modePlain   = "plain"
	modeInvalid = "invalid"
	modeError   = "error"
)

const invalidSnippet = "def broken(:\n    pass"

type backend struct {
	mode      string
	failFirst int64
	requests  atomic.Int64
}

func newBackend(mode string, failFirst int) (*backend, error) {
	switch mode {
	case modeJSON, modeFenced, modePlain, modeInvalid, modeError:
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	return &backend{mode: mode, failFirst: int64(failFirst)}, nil
}

func (b *backend) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", b.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

// --- Wire types ---

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Handler ---

func (b *backend) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}
	n := b.requests.Add(1)

	if b.mode == modeError {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"mock backend failure","type":"server_error"}}`))
		return
	}

	code := snippetFor(lastUserMessage(&req))
	if b.mode == modeInvalid || n <= b.failFirst {
		code = invalidSnippet
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}
	content := b.wrap(code, req.ResponseFormat != nil)
	resp := chatResponse{
		ID:     fmt.Sprintf("chatcmpl-mock-%d", n),
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{{
			Message:      chatMsg{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: len(content) / 4, TotalTokens: 10 + len(content)/4},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// wrap renders code in the configured shape. Structured output requests
// always get the JSON envelope.
func (b *backend) wrap(code string, structured bool) string {
	mode := b.mode
	if structured {
		mode = modeJSON
	}
	switch mode {
	case modeFenced:
		return "Here is the code:\n\n```python\n" + code + "\n```\n"
	case modePlain:
		return code
	default:
		data, _ := json.Marshal(map[string]any{"code_snippet": code, "deps": []string{}})
		return string(data)
	}
}

// snippetFor picks a deterministic program for a requirement.
func snippetFor(requirement string) string {
	req := strings.ToLower(requirement)
	switch {
	case strings.Contains(req, "hello"):
		return `print("Hello from Aython!")`
	case strings.Contains(req, "fibonacci"):
		return "def fibonacci(n):\n    a, b = 0, 1\n    out = []\n    while a <= n:\n        out.append(a)\n        a, b = b, a + b\n    return out\n\nprint(fibonacci(100))"
	case strings.Contains(req, "prime"):
		return "primes = [n for n in range(2, 50) if all(n % d for d in range(2, int(n ** 0.5) + 1))]\nprint(primes)"
	case strings.Contains(req, "fail"), strings.Contains(req, "error"):
		return `raise SystemExit("requested failure")`
	default:
		return fmt.Sprintf("print(%q)", requirement)
	}
}

// --- Models endpoint ---

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "aython-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

// lastUserMessage returns the requirement from the last user message.
func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		var text string
		switch v := req.Messages[i].Content.(type) {
		case string:
			text = v
		case []any:
			for _, part := range v {
				if m, ok := part.(map[string]any); ok {
					if t, ok := m["text"].(string); ok {
						text += t
					}
				}
			}
		}
		return requirementLine(text)
	}
	return ""
}

func requirementLine(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if _, rest, ok := strings.Cut(line, "does the following:"); ok {
			return strings.TrimSuffix(strings.TrimSpace(rest), ".")
		}
	}
	return strings.TrimSpace(prompt)
}
