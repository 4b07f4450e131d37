package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/debug"
	"github.com/rhuss/aython/pkg/observability"
	"github.com/rhuss/aython/pkg/provider"
	"github.com/rhuss/aython/pkg/sanitize"
	"github.com/rhuss/aython/pkg/validate"
)

var tracer = otel.Tracer("github.com/rhuss/aython/pkg/engine")

// MessageExhausted closes the debug log of a loop that found no valid candidate.
const MessageExhausted = "All retries exhausted, returning empty code snippet."

// Generator runs the generate-validate-retry loop.
// It is safe for concurrent use; each Generate call owns its state.
type Generator struct {
	provider  provider.Provider
	validator validate.Validator
	cfg       Config
}

// NewGenerator creates a Generator. The provider must not be nil. A nil
// validator selects validate.Default.
func NewGenerator(p provider.Provider, v validate.Validator, cfg Config) (*Generator, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	if v == nil {
		v = validate.Default()
	}
	return &Generator{provider: p, validator: v, cfg: cfg}, nil
}

// Provider returns the backend used for generation.
func (g *Generator) Provider() provider.Provider { return g.provider }

// Model returns the configured model name.
func (g *Generator) Model() string { return g.cfg.Model }

// candidate is one attempt's accepted output.
type candidate struct {
	code string
	name string
	deps []string
}

// Generate asks the backend for code at most Config.Retries times and
// returns the first candidate that passes the validator. When no attempt
// succeeds the result has an empty Code and a debug log describing every
// attempt. Generate never panics.
func (g *Generator) Generate(ctx context.Context, req *api.GenerationRequest) (result *api.GenerationResult) {
	ctx, span := tracer.Start(ctx, "Generate", trace.WithAttributes(
		attribute.String("aython.model", g.cfg.Model),
		attribute.String("aython.provider", g.provider.Name()),
	))
	defer span.End()

	result = &api.GenerationResult{Model: g.cfg.Model}
	logf := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		result.DebugLog = append(result.DebugLog, line)
		debug.Log("engine", line)
	}

	defer func() {
		if r := recover(); r != nil {
			result.Code, result.Name, result.Dependencies = "", "", nil
			logf("Unexpected error during code generation: %v", r)
			slog.Error("generation loop panicked", "panic", r)
			span.SetStatus(codes.Error, "panic")
			observability.GenerationsTotal.WithLabelValues("panic").Inc()
		}
	}()

	if req == nil {
		panic("nil generation request")
	}

	var feedback string
	for attempt := 1; attempt <= g.cfg.retries(); attempt++ {
		if err := ctx.Err(); err != nil {
			logf("[Attempt %d] cancelled: %v", attempt, err)
			span.SetStatus(codes.Error, "cancelled")
			observability.GenerationsTotal.WithLabelValues("cancelled").Inc()
			return result
		}
		result.Attempts = attempt

		c, err := g.attempt(ctx, attempt, req, feedback, logf)
		if err != nil {
			if g.cfg.ValidationFeedback {
				feedback = err.Error()
			}
			continue
		}

		result.Code = c.code
		result.Name = c.name
		result.Dependencies = c.deps
		span.SetAttributes(attribute.Int("aython.attempts", attempt))
		observability.GenerationsTotal.WithLabelValues("success").Inc()
		return result
	}

	logf(MessageExhausted)
	span.SetStatus(codes.Error, "retries exhausted")
	observability.GenerationsTotal.WithLabelValues("exhausted").Inc()
	return result
}

// attempt performs one backend call. It returns the validated candidate, or
// an error describing why the attempt was rejected. Backend errors are
// reported through logf and returned as-is; they never end the loop.
func (g *Generator) attempt(ctx context.Context, n int, req *api.GenerationRequest, feedback string, logf func(string, ...any)) (*candidate, error) {
	ctx, span := tracer.Start(ctx, "GenerateAttempt", trace.WithAttributes(attribute.Int("aython.attempt", n)))
	defer span.End()

	instructions := buildInstructions(req, feedback)
	logf("[Attempt %d] Instructions:\n%s", n, instructions)

	preq := &provider.Request{
		Model:       g.cfg.Model,
		System:      g.cfg.system(),
		Prompt:      instructions,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}
	if g.provider.Capabilities().StructuredOutput {
		preq.Schema = provider.CodeReplySchema()
	}

	resp, err := g.complete(ctx, preq)
	if err != nil {
		logf("[Attempt %d] backend error: %v", n, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend error")
		observability.GenerationAttemptsTotal.WithLabelValues("backend_error").Inc()
		return nil, err
	}
	logf("[Attempt %d] Raw response: %q", n, resp.Text)

	c := &candidate{}
	raw := resp.Text
	switch {
	case resp.Structured != nil && resp.Structured.CodeSnippet != "":
		raw = resp.Structured.CodeSnippet
		c.name, c.deps = resp.Structured.Name, resp.Structured.Deps
	default:
		if env, ok := sanitize.ParseEnvelope(resp.Text); ok {
			c.name, c.deps = env.Name, env.Deps
		}
	}

	c.code = sanitize.Clean(raw)
	logf("[Attempt %d] Cleaned code:\n%s", n, c.code)

	if err := validate.Explain(ctx, g.validator, c.code); err != nil {
		logf("[Attempt %d] check_code failed: %v", n, err)
		span.SetStatus(codes.Error, "invalid candidate")
		observability.GenerationAttemptsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	logf("[Attempt %d] check_code passed", n)
	observability.GenerationAttemptsTotal.WithLabelValues("valid").Inc()

	if req.Name != "" {
		c.name = req.Name
	}
	c.deps = mergeDeps(req.Dependencies, c.deps)
	return c, nil
}

// complete calls the provider and records provider metrics.
func (g *Generator) complete(ctx context.Context, preq *provider.Request) (*provider.Response, error) {
	if apiErr := provider.ValidateRequest(g.provider.Capabilities(), preq); apiErr != nil {
		return nil, apiErr
	}

	name := g.provider.Name()
	start := time.Now()
	resp, err := g.provider.Complete(ctx, preq)
	observability.ProviderLatency.WithLabelValues(name, preq.Model).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(name, preq.Model, "error").Inc()
		return nil, err
	}
	if resp == nil {
		observability.ProviderRequestsTotal.WithLabelValues(name, preq.Model, "error").Inc()
		return nil, fmt.Errorf("provider %s returned no response", name)
	}

	observability.ProviderRequestsTotal.WithLabelValues(name, preq.Model, "success").Inc()
	observability.ProviderTokensTotal.WithLabelValues(name, preq.Model, "input").Add(float64(resp.Usage.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(name, preq.Model, "output").Add(float64(resp.Usage.OutputTokens))
	return resp, nil
}

// mergeDeps returns declared followed by any generated dependencies not
// already declared, without blanks.
func mergeDeps(declared, generated []string) []string {
	var out []string
	for _, list := range [][]string{declared, generated} {
		for _, d := range list {
			if d == "" || slices.Contains(out, d) {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}
