package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/sandbox"
)

func newTestSandbox(t *testing.T, h http.HandlerFunc) (*Sandbox, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	sb, err := New(Config{
		URL:          srv.URL + "/",
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sb, &calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New with no URL or acquirer should fail")
	}
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantExit  int
		wantOut   string
		wantErr   string
		wantCalls int32
	}{
		{
			name: "successful execution",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var req ExecuteRequest
				json.NewDecoder(r.Body).Decode(&req)
				if req.Code != "print(42)" || req.TimeoutSeconds != 5 || len(req.Requirements) != 1 {
					writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unexpected request"})
					return
				}
				writeJSON(w, http.StatusOK, ExecuteResponse{Status: "success", Stdout: "42\n", ExecutionTimeMs: 12})
			},
			wantExit:  0,
			wantOut:   "42\n",
			wantCalls: 1,
		},
		{
			name: "non-zero exit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, ExecuteResponse{Status: "error", Stderr: "NameError", ExitCode: 1})
			},
			wantExit:  1,
			wantErr:   "NameError",
			wantCalls: 1,
		},
		{
			name: "capacity persists",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "at capacity"})
			},
			wantExit:  api.ExitSandboxFailure,
			wantErr:   "execution failed: sandbox at capacity",
			wantCalls: 3,
		},
		{
			name: "server error is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "boom"})
			},
			wantExit:  api.ExitSandboxFailure,
			wantErr:   "execution failed: sandbox returned HTTP 500: boom",
			wantCalls: 1,
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
			wantExit:  api.ExitSandboxFailure,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb, calls := newTestSandbox(t, tt.handler)

			res := sb.Execute(t.Context(), &sandbox.Request{
				Code:         "print(42)",
				Dependencies: []string{"rich"},
				Timeout:      5 * time.Second,
			})

			if res.ExitCode != tt.wantExit {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantExit)
			}
			if res.Stdout != tt.wantOut {
				t.Errorf("Stdout = %q, want %q", res.Stdout, tt.wantOut)
			}
			if tt.wantErr != "" && res.Stderr != tt.wantErr {
				t.Errorf("Stderr = %q, want %q", res.Stderr, tt.wantErr)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestExecute_RetriesUntilCapacity(t *testing.T) {
	var n atomic.Int32
	sb, calls := newTestSandbox(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "at capacity"})
			return
		}
		writeJSON(w, http.StatusOK, ExecuteResponse{Status: "success", Stdout: "ok\n"})
	})

	res := sb.Execute(t.Context(), &sandbox.Request{Code: "print('ok')"})

	if res.ExitCode != 0 || res.Stdout != "ok\n" {
		t.Errorf("result = %+v", res)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestExecute_TimeoutRoundsUp(t *testing.T) {
	var got ExecuteRequest
	sb, _ := newTestSandbox(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, ExecuteResponse{})
	})

	sb.Execute(t.Context(), &sandbox.Request{Code: "x", Timeout: 1500 * time.Millisecond})
	if got.TimeoutSeconds != 2 {
		t.Errorf("TimeoutSeconds = %d, want 2", got.TimeoutSeconds)
	}

	sb.Execute(t.Context(), &sandbox.Request{Code: "x"})
	if want := int(sandbox.DefaultTimeout / time.Second); got.TimeoutSeconds != want {
		t.Errorf("TimeoutSeconds = %d, want %d", got.TimeoutSeconds, want)
	}
}

func TestExecute_Unreachable(t *testing.T) {
	sb, err := New(Config{URL: "http://127.0.0.1:1", RetryMax: 1, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := sb.Execute(t.Context(), &sandbox.Request{Code: "print(1)"})

	if res.ExitCode != api.ExitSandboxFailure {
		t.Errorf("ExitCode = %d", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "execution failed: sandbox request failed") {
		t.Errorf("Stderr = %q", res.Stderr)
	}
}

func TestCheckRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	retry, err := checkRetry(ctx, &http.Response{StatusCode: http.StatusTooManyRequests}, nil)
	if retry {
		t.Error("retry = true for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestHealth(t *testing.T) {
	sb, _ := newTestSandbox(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Capacity: 3})
	})

	h, err := sb.Health(t.Context())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "healthy" || h.Capacity != 3 {
		t.Errorf("health = %+v", h)
	}
}

type countingAcquirer struct {
	url      string
	err      error
	acquired atomic.Int32
	released atomic.Int32
}

func (a *countingAcquirer) Acquire(context.Context) (string, func(), error) {
	if a.err != nil {
		return "", nil, a.err
	}
	a.acquired.Add(1)
	return a.url, func() { a.released.Add(1) }, nil
}

func TestExecute_UsesAcquirer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ExecuteResponse{Status: "success", Stdout: "ok\n"})
	}))
	t.Cleanup(srv.Close)

	acq := &countingAcquirer{url: srv.URL}
	sb, err := New(Config{Acquirer: acq})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := sb.Execute(t.Context(), &sandbox.Request{Code: "print('ok')"})

	if res.ExitCode != 0 || res.Stdout != "ok\n" {
		t.Errorf("result = %+v", res)
	}
	if acq.acquired.Load() != 1 || acq.released.Load() != 1 {
		t.Errorf("acquired = %d, released = %d; want 1, 1", acq.acquired.Load(), acq.released.Load())
	}
}

func TestExecute_AcquireFailure(t *testing.T) {
	sb, err := New(Config{Acquirer: &countingAcquirer{err: errors.New("no sandbox template")}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := sb.Execute(t.Context(), &sandbox.Request{Code: "print(1)"})

	if res.ExitCode != api.ExitSandboxFailure {
		t.Errorf("ExitCode = %d", res.ExitCode)
	}
	if want := "execution failed: acquire sandbox: no sandbox template"; res.Stderr != want {
		t.Errorf("Stderr = %q, want %q", res.Stderr, want)
	}
}

func TestStaticURL(t *testing.T) {
	url, release, err := StaticURL("http://sandbox:8080").Acquire(t.Context())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if url != "http://sandbox:8080" {
		t.Errorf("url = %q", url)
	}
	release()
}
