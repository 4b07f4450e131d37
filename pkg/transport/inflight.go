package transport

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
)

// InFlight tracks running calls by JSON-RPC ID so a client can cancel a
// long generate_and_run with the "cancel" method.
type InFlight struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlight creates an empty registry.
func NewInFlight() *InFlight {
	return &InFlight{entries: make(map[string]context.CancelFunc)}
}

// Register records cancel under id.
func (f *InFlight) Register(id string, cancel context.CancelFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[id] = cancel
}

// Cancel cancels the call registered under id. It reports whether one was
// running.
func (f *InFlight) Cancel(id string) bool {
	f.mu.Lock()
	cancel, ok := f.entries[id]
	delete(f.entries, id)
	f.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Remove forgets id without cancelling.
func (f *InFlight) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
}

// Len returns the number of running calls.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Middleware registers each call that has an ID for its duration.
func (f *InFlight) Middleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (any, error) {
			if req.IsNotification() {
				return next.ServeRPC(ctx, req)
			}
			id := req.IDString()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			f.Register(id, cancel)
			defer f.Remove(id)
			return next.ServeRPC(ctx, req)
		})
	}
}

// CancelParams are the params of the "cancel" method.
type CancelParams struct {
	ID json.RawMessage `json:"id"`
}

// CancelResult reports whether a call was cancelled.
type CancelResult struct {
	Cancelled bool `json:"cancelled"`
}

// CancelMethod implements the "cancel" method against f.
func (f *InFlight) CancelMethod() MethodFunc {
	return func(_ context.Context, params json.RawMessage) (any, error) {
		var p CancelParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		if len(p.ID) == 0 || !validID(p.ID) {
			return nil, NewError(CodeInvalidParams, "id is required")
		}
		req := Request{ID: p.ID}
		return CancelResult{Cancelled: f.Cancel(req.IDString())}, nil
	}
}

func itoa(n int) string { return strconv.Itoa(n) }
