// Package local runs snippets as python3 subprocesses.
//
// Every call writes the snippet to its own temp file, runs it in a fresh
// process group under a wall-clock timeout and removes the file on every
// path. The whole process group is killed once the snippet finishes or
// times out, so background children never outlive a call.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/debug"
	"github.com/rhuss/aython/pkg/sandbox"
)

// waitDelay bounds how long Run waits for grandchildren holding the
// output pipes after the main process exits or is killed.
const waitDelay = 2 * time.Second

// Sandbox is a sandbox.Executor backed by local subprocesses.
type Sandbox struct {
	python    string
	tempDir   string
	maxOutput int
	env       []string
}

var _ sandbox.Executor = (*Sandbox)(nil)

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithPython sets the interpreter (default "python3").
func WithPython(path string) Option {
	return func(s *Sandbox) {
		if path != "" {
			s.python = path
		}
	}
}

// WithTempDir sets the directory for snippet files (default os.TempDir()).
func WithTempDir(dir string) Option {
	return func(s *Sandbox) { s.tempDir = dir }
}

// WithMaxOutput caps each captured stream (default sandbox.DefaultMaxOutput).
func WithMaxOutput(n int) Option {
	return func(s *Sandbox) { s.maxOutput = n }
}

// WithEnv appends KEY=VALUE entries to the child environment.
func WithEnv(env ...string) Option {
	return func(s *Sandbox) { s.env = append(s.env, env...) }
}

// New creates a local sandbox.
func New(opts ...Option) *Sandbox {
	s := &Sandbox{python: "python3", maxOutput: sandbox.DefaultMaxOutput}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns "local".
func (s *Sandbox) Name() string { return "local" }

// Execute runs req.Code. Dependencies are ignored; the interpreter's
// installed packages are available.
func (s *Sandbox) Execute(ctx context.Context, req *sandbox.Request) (res *api.ExecutionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = api.SandboxFailure(fmt.Sprintf("execution failed: %v", r))
		}
		res.Duration = time.Since(start)
	}()

	path, err := s.writeScript(req.Code)
	if err != nil {
		return api.SandboxFailure("execution failed: " + err.Error())
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			debug.Log("sandbox", "temp file cleanup failed", "path", path, "error", err)
		}
	}()

	timeout := req.EffectiveTimeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.python, path)
	cmd.Dir = filepath.Dir(path)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	stdout := &sandbox.LimitedBuffer{Max: s.maxOutput}
	stderr := &sandbox.LimitedBuffer{Max: s.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	debug.Log("sandbox", "running snippet", "path", path, "timeout", timeout)
	runErr := cmd.Run()
	if cmd.Process != nil {
		killProcessGroup(cmd.Process.Pid)
	}

	switch err := runCtx.Err(); {
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("snippet timed out", "timeout", timeout)
		return api.TimedOut()
	case err != nil:
		return api.SandboxFailure("execution failed: " + err.Error())
	}

	// ErrWaitDelay means the snippet exited but a background child kept
	// the output pipes open; the snippet's own status still stands.
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return &api.ExecutionResult{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}
	case errors.As(runErr, &exitErr):
		return &api.ExecutionResult{ExitCode: exitCode(exitErr.ProcessState), Stdout: stdout.String(), Stderr: stderr.String()}
	case errors.Is(runErr, exec.ErrWaitDelay) && cmd.ProcessState != nil:
		debug.Log("sandbox", "snippet left background processes running", "path", path)
		return &api.ExecutionResult{ExitCode: exitCode(cmd.ProcessState), Stdout: stdout.String(), Stderr: stderr.String()}
	default:
		return api.SandboxFailure("execution failed: " + runErr.Error())
	}
}

func (s *Sandbox) writeScript(code string) (string, error) {
	f, err := os.CreateTemp(s.tempDir, "aython-*.py")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	_, werr := f.WriteString(code)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	return f.Name(), nil
}
