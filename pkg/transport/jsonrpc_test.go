package transport

import (
	"encoding/json"
	"testing"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		code int
	}{
		{"valid", Request{JSONRPC: "2.0", Method: "generate", ID: json.RawMessage(`1`)}, 0},
		{"notification", Request{JSONRPC: "2.0", Method: "generate"}, 0},
		{"string id", Request{JSONRPC: "2.0", Method: "generate", ID: json.RawMessage(`"abc"`)}, 0},
		{"null id", Request{JSONRPC: "2.0", Method: "generate", ID: json.RawMessage(`null`)}, 0},
		{"wrong version", Request{JSONRPC: "1.0", Method: "generate", ID: json.RawMessage(`1`)}, CodeInvalidRequest},
		{"missing method", Request{JSONRPC: "2.0", ID: json.RawMessage(`1`)}, CodeInvalidRequest},
		{"object id", Request{JSONRPC: "2.0", Method: "m", ID: json.RawMessage(`{"a":1}`)}, CodeInvalidRequest},
		{"scalar params", Request{JSONRPC: "2.0", Method: "m", Params: json.RawMessage(`42`)}, CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.code == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Code != tt.code {
				t.Fatalf("got %v, want code %d", err, tt.code)
			}
		})
	}
}

func TestResponseEncoding(t *testing.T) {
	data, err := json.Marshal(NewResult(json.RawMessage(`7`), map[string]string{"ok": "yes"}))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `{"jsonrpc":"2.0","result":{"ok":"yes"},"id":7}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	data, err = json.Marshal(NewErrorResponse(nil, NewError(CodeParseError, "parse error")))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `{"jsonrpc":"2.0","error":{"code":-32700,"message":"parse error"},"id":null}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestIDString(t *testing.T) {
	if got := (&Request{ID: json.RawMessage(`"req-1"`)}).IDString(); got != "req-1" {
		t.Errorf("string id = %q", got)
	}
	if got := (&Request{ID: json.RawMessage(`12`)}).IDString(); got != "12" {
		t.Errorf("numeric id = %q", got)
	}
}
