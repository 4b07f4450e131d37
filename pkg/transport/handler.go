package transport

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
)

// Handler answers one JSON-RPC call.
type Handler interface {
	ServeRPC(ctx context.Context, req *Request) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// ServeRPC calls f(ctx, req).
func (f HandlerFunc) ServeRPC(ctx context.Context, req *Request) (any, error) {
	return f(ctx, req)
}

// MethodFunc implements a single method.
type MethodFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Router dispatches calls by method name.
type Router struct {
	mu      sync.RWMutex
	methods map[string]MethodFunc
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{methods: make(map[string]MethodFunc)}
}

// Handle registers fn for method, replacing any earlier registration.
func (r *Router) Handle(method string, fn MethodFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[method] = fn
}

// Methods returns the registered method names, sorted.
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ServeRPC implements Handler.
func (r *Router) ServeRPC(ctx context.Context, req *Request) (any, error) {
	r.mu.RLock()
	fn, ok := r.methods[req.Method]
	r.mu.RUnlock()
	if !ok {
		return nil, NewError(CodeMethodNotFound, "method not found: "+req.Method)
	}
	return fn(ctx, req.Params)
}

// Dispatch validates req, runs it through h and builds the reply. It
// returns nil for notifications.
func Dispatch(ctx context.Context, h Handler, req *Request) *Response {
	if rpcErr := req.Validate(); rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr)
	}
	result, err := h.ServeRPC(ctx, req)
	if req.IsNotification() {
		return nil
	}
	if err != nil {
		return NewErrorResponse(req.ID, AsError(err))
	}
	return NewResult(req.ID, result)
}
