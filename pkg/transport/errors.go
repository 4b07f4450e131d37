package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rhuss/aython/pkg/api"
)

// Standard JSON-RPC codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application codes.
const (
	CodeInitFailed       = -32000
	CodeNotInitialized   = -32001
	CodeGenerationFailed = -32002
	CodeUnexpected       = -32003
	CodeRateLimited      = -32029
	CodeUnauthorized     = -32030
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError builds an Error without data.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithData returns a copy of e carrying data.
func (e *Error) WithData(data any) *Error {
	c := *e
	c.Data = data
	return &c
}

var apiErrorCodes = map[api.ErrorType]int{
	api.ErrorTypeInvalidRequest:   CodeInvalidParams,
	api.ErrorTypeNotFound:         CodeInvalidParams,
	api.ErrorTypeNotInitialized:   CodeNotInitialized,
	api.ErrorTypeGenerationFailed: CodeGenerationFailed,
	api.ErrorTypeTooManyRequests:  CodeRateLimited,
	api.ErrorTypeUnauthorized:     CodeUnauthorized,
	api.ErrorTypeModelError:       CodeUnexpected,
	api.ErrorTypeServerError:      CodeInternalError,
}

// AsError converts a handler error into a JSON-RPC error.
func AsError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		code, ok := apiErrorCodes[apiErr.Type]
		if !ok {
			code = CodeInternalError
		}
		e := NewError(code, apiErr.Message)
		if apiErr.Param != "" {
			e.Data = map[string]string{"param": apiErr.Param}
		}
		return e
	}
	return NewError(CodeInternalError, err.Error())
}

// DecodeParams unmarshals params into v. Missing params decode as {}.
// Unknown fields are rejected.
func DecodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if params[0] == '[' {
		return NewError(CodeInvalidParams, "params must be an object")
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return NewError(CodeInvalidParams, "invalid params: "+err.Error())
	}
	return nil
}
