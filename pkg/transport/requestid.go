package transport

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// RequestID makes sure every call carries a request ID. An ID already in
// the context (from the X-Request-ID header) is kept.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (any, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.ServeRPC(ctx, req)
		})
	}
}

// NewRequestID returns 32 random hex digits.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
