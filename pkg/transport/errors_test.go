package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rhuss/aython/pkg/api"
)

func TestAsError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"rpc error", NewError(CodeMethodNotFound, "nope"), CodeMethodNotFound, "nope"},
		{"wrapped rpc error", fmt.Errorf("outer: %w", NewError(CodeInitFailed, "boom")), CodeInitFailed, "boom"},
		{"not initialized", api.NewNotInitializedError(), CodeNotInitialized, "Agent not initialized"},
		{"generation failed", api.NewGenerationFailedError("No code generated"), CodeGenerationFailed, "No code generated"},
		{"invalid request", api.NewInvalidRequestError("requirements", "requirements is required"), CodeInvalidParams, "requirements is required"},
		{"rate limited", api.NewTooManyRequestsError("slow down"), CodeRateLimited, "slow down"},
		{"unauthorized", api.NewUnauthorizedError("who are you"), CodeUnauthorized, "who are you"},
		{"model error", api.NewModelError("backend down"), CodeUnexpected, "backend down"},
		{"plain error", errors.New("disk full"), CodeInternalError, "disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsError(tt.err)
			if got.Code != tt.code || got.Message != tt.msg {
				t.Errorf("got {%d %q}, want {%d %q}", got.Code, got.Message, tt.code, tt.msg)
			}
		})
	}
}

func TestAsError_Param(t *testing.T) {
	got := AsError(api.NewInvalidRequestError("deps", "bad dependency"))
	data, ok := got.Data.(map[string]string)
	if !ok || data["param"] != "deps" {
		t.Errorf("data = %#v", got.Data)
	}
}

func TestWithData(t *testing.T) {
	base := NewError(CodeGenerationFailed, "No code generated")
	withData := base.WithData(map[string]string{"debug_log": "[Attempt 1] empty"})
	if base.Data != nil {
		t.Error("WithData modified the receiver")
	}
	if withData.Code != CodeGenerationFailed || withData.Data == nil {
		t.Errorf("unexpected %+v", withData)
	}
}

func TestDecodeParams(t *testing.T) {
	type params struct {
		Model string `json:"model"`
	}

	var p params
	if err := DecodeParams(json.RawMessage(`{"model":"gpt-4o"}`), &p); err != nil || p.Model != "gpt-4o" {
		t.Fatalf("got %+v, %v", p, err)
	}

	p = params{}
	if err := DecodeParams(nil, &p); err != nil {
		t.Fatalf("empty params: %v", err)
	}

	for _, raw := range []string{`{"model":1}`, `{"modle":"x"}`, `["gpt-4o"]`} {
		err := DecodeParams(json.RawMessage(raw), &p)
		if AsError(err).Code != CodeInvalidParams {
			t.Errorf("%s: got %v, want invalid params", raw, err)
		}
	}
}
