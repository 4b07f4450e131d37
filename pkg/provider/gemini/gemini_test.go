package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/rhuss/aython/pkg/provider"
)

func TestNormalizeModel(t *testing.T) {
	tests := []struct{ in, want string }{
		{"gemini-2.0-flash", "models/gemini-2.0-flash"},
		{"models/gemini-2.0-flash", "models/gemini-2.0-flash"},
	}
	for _, tt := range tests {
		if got := NormalizeModel(tt.in); got != tt.want {
			t.Errorf("NormalizeModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToSchema(t *testing.T) {
	s := toSchema(provider.CodeReplySchema().Definition)
	if s.Type != genai.TypeObject {
		t.Fatalf("Type = %v, want object", s.Type)
	}
	if len(s.Properties) != 3 {
		t.Errorf("got %d properties, want 3", len(s.Properties))
	}
	deps := s.Properties["deps"]
	if deps == nil || deps.Type != genai.TypeArray || deps.Items == nil || deps.Items.Type != genai.TypeString {
		t.Errorf("deps schema = %+v", deps)
	}
	if len(s.Required) != 3 {
		t.Errorf("Required = %v", s.Required)
	}
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/gemini-2.0-flash:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"name\":\"n\",\"code_snippet\":\"x = 1\",\"deps\":[]}"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 6, "totalTokenCount": 10},
			"modelVersion": "gemini-2.0-flash-001"
		}`))
	}))
	defer srv.Close()

	p, err := New(context.Background(), Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), &provider.Request{
		Model:  "gemini-2.0-flash",
		Prompt: "assign one",
		Schema: provider.CodeReplySchema(),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Structured == nil || resp.Structured.CodeSnippet != "x = 1" {
		t.Errorf("Structured = %+v", resp.Structured)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Errorf("TotalTokens = %d, want 10", resp.Usage.TotalTokens)
	}
	if resp.Model != "gemini-2.0-flash-001" {
		t.Errorf("Model = %q", resp.Model)
	}
}
