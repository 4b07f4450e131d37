package transport

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
)

func echoRouter() *Router {
	r := NewRouter()
	r.Handle("echo", func(_ context.Context, params json.RawMessage) (any, error) {
		return json.RawMessage(params), nil
	})
	r.Handle("fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("broken")
	})
	return r
}

func TestRouter_Dispatch(t *testing.T) {
	r := echoRouter()
	ctx := context.Background()

	resp := Dispatch(ctx, r, &Request{JSONRPC: "2.0", Method: "echo", Params: json.RawMessage(`{"a":1}`), ID: json.RawMessage(`1`)})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if got := string(resp.Result.(json.RawMessage)); got != `{"a":1}` {
		t.Errorf("result = %s", got)
	}

	resp = Dispatch(ctx, r, &Request{JSONRPC: "2.0", Method: "missing", ID: json.RawMessage(`2`)})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("got %+v, want method not found", resp.Error)
	}

	resp = Dispatch(ctx, r, &Request{JSONRPC: "2.0", Method: "fail", ID: json.RawMessage(`3`)})
	if resp.Error == nil || resp.Error.Code != CodeInternalError || resp.Error.Message != "broken" {
		t.Errorf("got %+v, want internal error", resp.Error)
	}

	resp = Dispatch(ctx, r, &Request{JSONRPC: "1.0", Method: "echo", ID: json.RawMessage(`4`)})
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("got %+v, want invalid request", resp.Error)
	}
}

func TestRouter_NotificationHasNoReply(t *testing.T) {
	called := false
	r := NewRouter()
	r.Handle("ping", func(context.Context, json.RawMessage) (any, error) {
		called = true
		return "pong", nil
	})
	if resp := Dispatch(context.Background(), r, &Request{JSONRPC: "2.0", Method: "ping"}); resp != nil {
		t.Errorf("notification got reply %+v", resp)
	}
	if !called {
		t.Error("notification handler not called")
	}
}

func TestRouter_Methods(t *testing.T) {
	got := echoRouter().Methods()
	if !slices.Equal(got, []string{"echo", "fail"}) {
		t.Errorf("Methods() = %v", got)
	}
}
