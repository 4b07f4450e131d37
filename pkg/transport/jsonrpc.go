package transport

import (
	"bytes"
	"encoding/json"
)

// Version is the only protocol version accepted.
const Version = "2.0"

// Request is one JSON-RPC call. A nil ID marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the caller expects no reply.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// IDString returns the ID as text for logs and registries.
func (r *Request) IDString() string {
	var s string
	if json.Unmarshal(r.ID, &s) == nil {
		return s
	}
	return string(r.ID)
}

// Response is the reply to a call. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

var nullID = json.RawMessage("null")

// NewResult builds a success reply.
func NewResult(id json.RawMessage, result any) *Response {
	if result == nil {
		result = struct{}{}
	}
	return &Response{JSONRPC: Version, Result: result, ID: replyID(id)}
}

// NewErrorResponse builds an error reply.
func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: Version, Error: err, ID: replyID(id)}
}

func replyID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}

// validID accepts strings, numbers and null.
func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	switch id[0] {
	case '"':
		var s string
		return json.Unmarshal(id, &s) == nil
	case 'n':
		return bytes.Equal(id, nullID)
	default:
		var n json.Number
		return json.Unmarshal(id, &n) == nil
	}
}

// Validate checks the envelope of a decoded request.
func (r *Request) Validate() *Error {
	if r.JSONRPC != Version {
		return NewError(CodeInvalidRequest, `jsonrpc must be "2.0"`)
	}
	if r.Method == "" {
		return NewError(CodeInvalidRequest, "method is required")
	}
	if !validID(r.ID) {
		return NewError(CodeInvalidRequest, "id must be a string, number or null")
	}
	if len(r.Params) > 0 && r.Params[0] != '{' && r.Params[0] != '[' {
		return NewError(CodeInvalidRequest, "params must be an object or array")
	}
	return nil
}
