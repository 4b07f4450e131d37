package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/aython/pkg/debug"
	"github.com/rhuss/aython/pkg/observability"
	"github.com/rhuss/aython/pkg/storage"
)

// DefaultBypass lists paths that never require credentials.
var DefaultBypass = []string{"/healthz", "/readyz", "/metrics"}

// ErrorWriter renders a rejected request. err is ErrUnauthenticated,
// ErrTooManyRequests or an internal error.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// StatusCode maps a middleware error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSONError is the default ErrorWriter: {"error": "<message>"}.
func WriteJSONError(w http.ResponseWriter, _ *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// MiddlewareConfig configures Middleware. A nil Limiter disables rate
// limiting and a nil OnError uses WriteJSONError.
type MiddlewareConfig struct {
	Chain   *Chain
	Limiter RateLimiter
	Bypass  []string
	OnError ErrorWriter
}

// Middleware authenticates every request outside cfg.Bypass.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(cfg.Bypass))
	for _, p := range cfg.Bypass {
		bypass[p] = true
	}
	onError := cfg.OnError
	if onError == nil {
		onError = WriteJSONError
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := cfg.Chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				slog.Warn("authentication failed", "path", r.URL.Path, "remote_addr", r.RemoteAddr, "error", res.Err)
				onError(w, r, ErrUnauthenticated)
				return
			}
			id := res.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				onError(w, r, errors.New("internal authentication error"))
				return
			}
			debug.Log("transport", "authenticated", "subject", id.Subject, "tier", id.ServiceTier)

			if cfg.Limiter != nil {
				if err := cfg.Limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.ServiceTier)
					observability.RateLimitRejectedTotal.WithLabelValues(id.ServiceTier).Inc()
					onError(w, r, ErrTooManyRequests)
					return
				}
			}

			ctx := SetIdentity(r.Context(), id)
			if tenant := id.TenantID(); tenant != "" {
				ctx = storage.SetTenant(ctx, tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
