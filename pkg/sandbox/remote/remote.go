// Package remote executes snippets on a sandbox server (cmd/sandbox-server)
// over HTTP. The server is either a fixed URL or a per-run instance handed
// out by an Acquirer (see the kubernetes subpackage).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/debug"
	"github.com/rhuss/aython/pkg/sandbox"
)

// ErrAtCapacity is returned when the server keeps answering 429 after
// every retry.
var ErrAtCapacity = errors.New("sandbox at capacity")

// Acquirer hands out a sandbox server for one execution. release is
// called once the execution is over.
type Acquirer interface {
	Acquire(ctx context.Context) (baseURL string, release func(), err error)
}

// StaticURL is an Acquirer that always returns the same server.
type StaticURL string

// Acquire returns the URL and a no-op release.
func (u StaticURL) Acquire(context.Context) (string, func(), error) {
	return string(u), func() {}, nil
}

// Config configures the remote sandbox client.
type Config struct {
	// URL is the sandbox server base URL, e.g. http://sandbox:8080.
	URL string
	// Acquirer, when set, is used instead of URL.
	Acquirer Acquirer
	// RetryMax is the number of retries on 429 and connection errors (default 3).
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff (default 500ms and 10s).
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Overhead is added to the execution timeout to form the HTTP
	// deadline, covering dependency installs and transfer (default 60s).
	Overhead time.Duration
}

// Sandbox is a sandbox.Executor that forwards runs to a sandbox server.
type Sandbox struct {
	acquirer Acquirer
	client   *retryablehttp.Client
	overhead time.Duration
}

var _ sandbox.Executor = (*Sandbox)(nil)

// New creates a remote sandbox client.
func New(cfg Config) (*Sandbox, error) {
	if cfg.Acquirer == nil {
		if cfg.URL == "" {
			return nil, fmt.Errorf("remote sandbox: url or acquirer is required")
		}
		cfg.Acquirer = StaticURL(strings.TrimSuffix(cfg.URL, "/"))
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = 10 * time.Second
	}
	if cfg.Overhead == 0 {
		cfg.Overhead = 60 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.CheckRetry = checkRetry
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil

	return &Sandbox{
		acquirer: cfg.Acquirer,
		client:   client,
		overhead: cfg.Overhead,
	}, nil
}

// checkRetry retries connection failures and 429s only. Any other status
// means the server accepted the request, and the snippet may already
// have run.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

// Name returns "remote".
func (s *Sandbox) Name() string { return "remote" }

// Run acquires a server, sends one execution request to it and decodes
// the reply.
func (s *Sandbox) Run(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	baseURL, release, err := s.acquirer.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire sandbox: %w", err)
	}
	defer release()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var out ExecuteResponse
	if err := s.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health queries the health endpoint of an acquired server.
func (s *Sandbox) Health(ctx context.Context) (*HealthResponse, error) {
	baseURL, release, err := s.acquirer.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire sandbox: %w", err)
	}
	defer release()

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	var out HealthResponse
	if err := s.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Sandbox) do(req *retryablehttp.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4*sandbox.DefaultMaxOutput))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrAtCapacity
	case resp.StatusCode != http.StatusOK:
		var e ErrorResponse
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			return fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, debug.Truncate(string(respBody), 200))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Execute runs req on the server. Transport failures map to a sandbox
// failure result.
func (s *Sandbox) Execute(ctx context.Context, req *sandbox.Request) *api.ExecutionResult {
	start := time.Now()
	timeout := req.EffectiveTimeout()

	ctx, cancel := context.WithTimeout(ctx, timeout+s.overhead)
	defer cancel()

	resp, err := s.Run(ctx, &ExecuteRequest{
		Code:           req.Code,
		TimeoutSeconds: max(1, int((timeout+time.Second-1)/time.Second)),
		Requirements:   req.Dependencies,
	})
	if err != nil {
		res := api.SandboxFailure("execution failed: " + err.Error())
		res.Duration = time.Since(start)
		return res
	}

	return &api.ExecutionResult{
		ExitCode: resp.ExitCode,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		Duration: time.Duration(resp.ExecutionTimeMs) * time.Millisecond,
	}
}
