// Package sandbox defines the contract for running generated snippets in
// isolation. Implementations live in subpackages: local (subprocess),
// container (throwaway Docker image) and remote (HTTP sandbox server).
//
// Execute never panics and never returns a Go error. Failures of the
// sandbox itself are reported as an ExecutionResult with exit code
// api.ExitSandboxFailure and a description on stderr.
package sandbox

import (
	"bytes"
	"context"
	"time"

	"github.com/rhuss/aython/pkg/api"
)

// DefaultTimeout bounds a run when the request does not set one.
const DefaultTimeout = 10 * time.Second

// DefaultMaxOutput caps each captured stream.
const DefaultMaxOutput = 1 << 20

// Request is a single execution request.
type Request struct {
	Code string
	// Dependencies are pip requirement specifiers. The local sandbox
	// ignores them; the container and remote sandboxes install them.
	Dependencies []string
	// Name is an optional label used in image tags and logs.
	Name    string
	Timeout time.Duration
}

// EffectiveTimeout returns the request timeout or DefaultTimeout.
func (r *Request) EffectiveTimeout() time.Duration {
	if r == nil || r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

// Executor runs a snippet and reports its outcome.
// Implementations must be safe for concurrent use; every call owns its
// files, processes and containers.
type Executor interface {
	Name() string
	Execute(ctx context.Context, req *Request) *api.ExecutionResult
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, req *Request) *api.ExecutionResult

// Name returns "func".
func (f Func) Name() string { return "func" }

// Execute calls f.
func (f Func) Execute(ctx context.Context, req *Request) *api.ExecutionResult {
	return f(ctx, req)
}

// LimitedBuffer is an io.Writer that keeps at most Max bytes and silently
// drops the rest. A zero Max keeps DefaultMaxOutput bytes.
type LimitedBuffer struct {
	Max       int
	buf       bytes.Buffer
	truncated bool
}

// Write never fails so a chatty child process is not killed by EPIPE.
func (b *LimitedBuffer) Write(p []byte) (int, error) {
	limit := b.Max
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	room := limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// String returns the captured text.
func (b *LimitedBuffer) String() string { return b.buf.String() }

// Truncated reports whether output was dropped.
func (b *LimitedBuffer) Truncated() bool { return b.truncated }

// LimitOutput returns at most max bytes of out as text.
func LimitOutput(out []byte, max int) string {
	if max <= 0 {
		max = DefaultMaxOutput
	}
	if len(out) > max {
		out = out[:max]
	}
	return string(out)
}

// Outcome classifies a result for metrics: ok, nonzero, timeout or failure.
func Outcome(res *api.ExecutionResult) string {
	switch {
	case res == nil:
		return "failure"
	case res.ExitCode == 0:
		return "ok"
	case res.ExitCode == api.ExitSandboxFailure && res.Stderr == api.MessageTimedOut:
		return "timeout"
	case res.ExitCode == api.ExitSandboxFailure:
		return "failure"
	default:
		return "nonzero"
	}
}
