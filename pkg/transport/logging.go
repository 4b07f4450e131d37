package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/aython/pkg/observability"
)

// Logging logs every call and counts it in aython_rpc_calls_total.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (any, error) {
			start := time.Now()
			result, err := next.ServeRPC(ctx, req)

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("rpc_id", req.IDString()),
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.Duration("duration", time.Since(start)),
			}
			code := 0
			if err != nil {
				rpcErr := AsError(err)
				code = rpcErr.Code
				attrs = append(attrs, slog.Int("code", code), slog.String("error", rpcErr.Message))
				logger.LogAttrs(ctx, slog.LevelWarn, "rpc call failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "rpc call completed", attrs...)
			}
			observability.RPCCallsTotal.WithLabelValues(observability.MethodLabel(req.Method), codeLabel(code)).Inc()
			return result, err
		})
	}
}

func codeLabel(code int) string {
	return itoa(code)
}
