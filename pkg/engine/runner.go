package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/debug"
	"github.com/rhuss/aython/pkg/observability"
	"github.com/rhuss/aython/pkg/sandbox"
	"github.com/rhuss/aython/pkg/storage"
)

// CodeGenerator produces code for a request. *Generator implements it.
type CodeGenerator interface {
	Generate(ctx context.Context, req *api.GenerationRequest) *api.GenerationResult
}

// CodeGeneratorFunc adapts a function to CodeGenerator.
type CodeGeneratorFunc func(ctx context.Context, req *api.GenerationRequest) *api.GenerationResult

// Generate calls f(ctx, req).
func (f CodeGeneratorFunc) Generate(ctx context.Context, req *api.GenerationRequest) *api.GenerationResult {
	return f(ctx, req)
}

// Runner composes generation and sandboxed execution.
type Runner struct {
	generator CodeGenerator
	sandbox   sandbox.Executor
	history   storage.HistoryStore
	timeout   time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithHistory records every run in store. Store failures are logged and
// never change a run's result.
func WithHistory(store storage.HistoryStore) RunnerOption {
	return func(r *Runner) { r.history = store }
}

// WithExecutionTimeout sets the sandbox timeout for generated code.
func WithExecutionTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

// NewRunner creates a Runner. Generator and sandbox must not be nil.
func NewRunner(gen CodeGenerator, sb sandbox.Executor, opts ...RunnerOption) (*Runner, error) {
	if gen == nil {
		return nil, fmt.Errorf("engine: generator must not be nil")
	}
	if sb == nil {
		return nil, fmt.Errorf("engine: sandbox must not be nil")
	}
	r := &Runner{generator: gen, sandbox: sb, timeout: sandbox.DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Generate runs the generation loop only. It never panics and never
// returns nil.
func (r *Runner) Generate(ctx context.Context, req *api.GenerationRequest) *api.GenerationResult {
	return r.generate(ctx, req)
}

func (r *Runner) generate(ctx context.Context, req *api.GenerationRequest) (gen *api.GenerationResult) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("code generator panicked", "panic", p)
			gen = &api.GenerationResult{DebugLog: []string{fmt.Sprintf("Unexpected error during code generation: %v", p)}}
		}
		if gen == nil {
			gen = &api.GenerationResult{}
		}
	}()
	return r.generator.Generate(ctx, req)
}

// Execute runs code in the sandbox and records sandbox metrics.
// A zero timeout uses the Runner's execution timeout; req itself is
// never modified. A nil request or a panicking sandbox yields a
// sandbox failure result.
func (r *Runner) Execute(ctx context.Context, req *sandbox.Request) *api.ExecutionResult {
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()

	name := r.sandbox.Name()
	start := time.Now()
	res := r.execute(ctx, req)
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}

	outcome := sandbox.Outcome(res)
	observability.SandboxExecutionsTotal.WithLabelValues(name, outcome).Inc()
	observability.SandboxDuration.WithLabelValues(name).Observe(res.Duration.Seconds())
	span.SetAttributes(
		attribute.String("aython.sandbox", name),
		attribute.Int("aython.exit_code", res.ExitCode),
	)
	if outcome == "timeout" || outcome == "failure" {
		span.SetStatus(codes.Error, res.Stderr)
	}
	debug.Log("sandbox", "execution finished", "sandbox", name, "exit_code", res.ExitCode, "duration", res.Duration)
	return res
}

func (r *Runner) execute(ctx context.Context, req *sandbox.Request) (res *api.ExecutionResult) {
	if req == nil {
		return api.SandboxFailure("execution failed: no request")
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("sandbox panicked", "sandbox", r.sandbox.Name(), "panic", p)
			res = api.SandboxFailure(fmt.Sprintf("execution failed: %v", p))
		}
	}()

	call := *req
	if call.Timeout <= 0 {
		call.Timeout = r.timeout
	}
	res = r.sandbox.Execute(ctx, &call)
	if res == nil {
		res = api.SandboxFailure("execution failed: sandbox returned no result")
	}
	return res
}

// GenerateAndExecute generates code for req and runs it. When generation
// fails or panics the result carries api.MessageNoCode, a nil Execution
// and the debug log, and the sandbox is not invoked.
func (r *Runner) GenerateAndExecute(ctx context.Context, req *api.GenerationRequest) *api.RunResult {
	ctx, span := tracer.Start(ctx, "GenerateAndExecute")
	defer span.End()

	run := &api.RunResult{ID: api.NewRunID()}
	gen := r.generate(ctx, req)
	run.DebugLog = gen.DebugText()

	if !gen.Success() {
		run.Error = api.MessageNoCode
		span.SetStatus(codes.Error, api.MessageNoCode)
		r.record(ctx, req, gen, run)
		return run
	}

	run.Code = gen.Code
	run.Execution = r.Execute(ctx, &sandbox.Request{
		Code:         gen.Code,
		Dependencies: gen.Dependencies,
		Name:         gen.Name,
		Timeout:      r.timeout,
	})
	r.record(ctx, req, gen, run)
	return run
}

func (r *Runner) record(ctx context.Context, req *api.GenerationRequest, gen *api.GenerationResult, run *api.RunResult) {
	if r.history == nil || req == nil {
		return
	}
	if err := r.history.Save(ctx, api.NewRunRecord(req, gen, run)); err != nil {
		slog.Warn("failed to record run", "id", run.ID, "error", err)
	}
}

// History returns the configured history store, or nil.
func (r *Runner) History() storage.HistoryStore { return r.history }
