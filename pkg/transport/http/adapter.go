package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/aython/pkg/auth"
	"github.com/rhuss/aython/pkg/transport"
)

// ReadinessCheck reports whether a dependency is ready to serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Adapter serves JSON-RPC 2.0 over HTTP. Single calls and batches are
// accepted on POST / and POST /rpc.
type Adapter struct {
	handler transport.Handler
	mux     *http.ServeMux
	config  Config
	checks  map[string]ReadinessCheck
	wrap    []func(http.Handler) http.Handler
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	// MaxBatchSize bounds the number of calls in one batch. 0 means no limit.
	MaxBatchSize int
	// BatchConcurrency is the number of batch calls served in parallel.
	BatchConcurrency int
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:      10 << 20, // 10 MB
		MaxBatchSize:     100,
		BatchConcurrency: 4,
	}
}

// NewAdapter creates an HTTP adapter for h. Middleware is applied to h in
// the given order.
func NewAdapter(h transport.Handler, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		h = transport.Chain(middlewares...)(h)
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 1
	}

	a := &Adapter{
		handler: h,
		mux:     http.NewServeMux(),
		config:  cfg,
		checks:  make(map[string]ReadinessCheck),
	}

	a.mux.HandleFunc("POST /{$}", a.handleRPC)
	a.mux.HandleFunc("POST /rpc", a.handleRPC)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)

	return a
}

// Mount serves h under pattern next to the JSON-RPC routes. The server
// uses it for /metrics and /mcp.
func (a *Adapter) Mount(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// AddReadinessCheck registers a check reported by GET /readyz.
func (a *Adapter) AddReadinessCheck(name string, check ReadinessCheck) {
	a.checks[name] = check
}

// Use wraps every route with HTTP middleware such as authentication or
// metrics. The first one added is the outermost.
func (a *Adapter) Use(mw func(http.Handler) http.Handler) {
	a.wrap = append(a.wrap, mw)
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest.
func (a *Adapter) Handler() http.Handler {
	var h http.Handler = a.mux
	for i := len(a.wrap) - 1; i >= 0; i-- {
		h = a.wrap[i](h)
	}
	return httpRequestIDMiddleware(h)
}

// httpRequestIDMiddleware propagates the X-Request-ID header into the
// context and echoes the effective ID on the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (a *Adapter) handleRPC(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			writeJSON(w, http.StatusUnsupportedMediaType,
				transport.NewErrorResponse(nil, transport.NewError(transport.CodeInvalidRequest, "Content-Type must be application/json")))
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.config.MaxBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				transport.NewErrorResponse(nil, transport.NewError(transport.CodeInvalidRequest, "request body too large")))
			return
		}
		writeJSON(w, http.StatusBadRequest,
			transport.NewErrorResponse(nil, transport.NewError(transport.CodeParseError, "reading request body: "+err.Error())))
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		a.serveBatch(w, r, body)
		return
	}

	resp := a.serveOne(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Adapter) serveBatch(w http.ResponseWriter, r *http.Request, body []byte) {
	var calls []json.RawMessage
	if err := json.Unmarshal(body, &calls); err != nil {
		writeJSON(w, http.StatusOK, transport.NewErrorResponse(nil, transport.NewError(transport.CodeParseError, "parse error")))
		return
	}
	if len(calls) == 0 {
		writeJSON(w, http.StatusOK, transport.NewErrorResponse(nil, transport.NewError(transport.CodeInvalidRequest, "empty batch")))
		return
	}
	if a.config.MaxBatchSize > 0 && len(calls) > a.config.MaxBatchSize {
		writeJSON(w, http.StatusOK, transport.NewErrorResponse(nil, transport.NewError(transport.CodeInvalidRequest, "batch too large")))
		return
	}

	replies := make([]*transport.Response, len(calls))
	var g errgroup.Group
	g.SetLimit(a.config.BatchConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			replies[i] = a.serveOne(r.Context(), call)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*transport.Response, 0, len(replies))
	for _, resp := range replies {
		if resp != nil {
			out = append(out, resp)
		}
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// serveOne decodes and dispatches a single call. It returns nil for
// notifications.
func (a *Adapter) serveOne(ctx context.Context, raw []byte) *transport.Response {
	if len(raw) == 0 {
		return transport.NewErrorResponse(nil, transport.NewError(transport.CodeParseError, "parse error"))
	}
	if raw[0] != '{' {
		if json.Valid(raw) {
			return transport.NewErrorResponse(nil, transport.NewError(transport.CodeInvalidRequest, "request must be an object"))
		}
		return transport.NewErrorResponse(nil, transport.NewError(transport.CodeParseError, "parse error"))
	}
	var req transport.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || !json.Valid(raw) {
			return transport.NewErrorResponse(nil, transport.NewError(transport.CodeParseError, "parse error"))
		}
		return transport.NewErrorResponse(nil, transport.NewError(transport.CodeInvalidRequest, "invalid request: "+err.Error()))
	}
	return transport.Dispatch(ctx, a.handler, &req)
}

func (a *Adapter) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(a.checks))
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": results})
}

// AuthErrorWriter renders authentication and rate-limit rejections as
// JSON-RPC errors while keeping the HTTP status of the rejection.
func AuthErrorWriter(w http.ResponseWriter, _ *http.Request, err error) {
	code := transport.CodeInternalError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		code = transport.CodeUnauthorized
	case errors.Is(err, auth.ErrTooManyRequests):
		code = transport.CodeRateLimited
	}
	writeJSON(w, auth.StatusCode(err), transport.NewErrorResponse(nil, transport.NewError(code, err.Error())))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}
