package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recovery turns a panicking handler into an internal error reply.
func Recovery() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in rpc handler",
						"method", req.Method,
						"request_id", RequestIDFromContext(ctx),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					result, err = nil, NewError(CodeInternalError, fmt.Sprintf("internal error: %v", r))
				}
			}()
			return next.ServeRPC(ctx, req)
		})
	}
}
