package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/engine"
	"github.com/rhuss/aython/pkg/provider"
	"github.com/rhuss/aython/pkg/sandbox"
	"github.com/rhuss/aython/pkg/storage"
	"github.com/rhuss/aython/pkg/validate"
)

// ProviderFactory builds a provider for model.
type ProviderFactory func(ctx context.Context, model string) (provider.Provider, error)

// Options configure a Service.
type Options struct {
	// NewProvider is called by Init. Required.
	NewProvider ProviderFactory
	// Sandbox runs generated and submitted code. Required.
	Sandbox sandbox.Executor
	// Validator checks candidates. Nil selects validate.Default.
	Validator validate.Validator
	// History records runs. Nil disables history.
	History storage.HistoryStore

	// DefaultModel is used when Init is called without a model.
	DefaultModel string
	// Engine is the generation loop configuration. Model is replaced by
	// the model passed to Init.
	Engine engine.Config
	// ExecutionTimeout bounds generated code runs. MaxExecutionTimeout
	// caps the timeout a caller may request for execute.
	ExecutionTimeout    time.Duration
	MaxExecutionTimeout time.Duration

	Validation api.ValidationConfig
}

// GenerationError reports a generation loop that produced no code. It
// carries the debug log of every attempt.
type GenerationError struct {
	Message  string
	DebugLog string
}

func (e *GenerationError) Error() string { return e.Message }

// agent is the state created by Init.
type agent struct {
	model     string
	provider  provider.Provider
	generator *engine.Generator
}

// Service is safe for concurrent use. Init may run while other calls are
// in flight; those keep the agent they started with.
type Service struct {
	opts   Options
	runner *engine.Runner

	mu    sync.RWMutex
	agent *agent
}

// New creates an uninitialized Service.
func New(opts Options) (*Service, error) {
	if opts.NewProvider == nil {
		return nil, errors.New("service: provider factory must not be nil")
	}
	if opts.Sandbox == nil {
		return nil, errors.New("service: sandbox must not be nil")
	}
	if opts.Validator == nil {
		opts.Validator = validate.Default()
	}
	if opts.ExecutionTimeout <= 0 {
		opts.ExecutionTimeout = sandbox.DefaultTimeout
	}
	if opts.MaxExecutionTimeout <= 0 {
		opts.MaxExecutionTimeout = 5 * time.Minute
	}
	if opts.Validation == (api.ValidationConfig{}) {
		opts.Validation = api.DefaultValidationConfig()
	}

	s := &Service{opts: opts}
	runnerOpts := []engine.RunnerOption{engine.WithExecutionTimeout(opts.ExecutionTimeout)}
	if opts.History != nil {
		runnerOpts = append(runnerOpts, engine.WithHistory(opts.History))
	}
	runner, err := engine.NewRunner(engine.CodeGeneratorFunc(s.generate), opts.Sandbox, runnerOpts...)
	if err != nil {
		return nil, err
	}
	s.runner = runner
	return s, nil
}

// Init builds a provider and generator for model, replacing any previous
// agent. An empty model selects the default model.
func (s *Service) Init(ctx context.Context, model string) (string, error) {
	if model == "" {
		model = s.opts.DefaultModel
	}
	if model == "" {
		return "", errors.New("no model given and no default model configured")
	}

	p, err := s.opts.NewProvider(ctx, model)
	if err != nil {
		return "", err
	}
	cfg := s.opts.Engine
	cfg.Model = model
	gen, err := engine.NewGenerator(p, s.opts.Validator, cfg)
	if err != nil {
		p.Close()
		return "", err
	}

	s.mu.Lock()
	old := s.agent
	s.agent = &agent{model: model, provider: p, generator: gen}
	s.mu.Unlock()

	if old != nil {
		if err := old.provider.Close(); err != nil {
			slog.Warn("closing previous provider", "model", old.model, "error", err)
		}
	}
	slog.Info("agent initialized", "model", model, "provider", p.Name())
	return fmt.Sprintf("Aython initialized with model %s", model), nil
}

// Model returns the initialized model, or "".
func (s *Service) Model() string {
	if a := s.current(); a != nil {
		return a.model
	}
	return ""
}

func (s *Service) current() *agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agent
}

// generate feeds the runner. It only runs after GenerateAndRun has
// checked that an agent exists.
func (s *Service) generate(ctx context.Context, req *api.GenerationRequest) *api.GenerationResult {
	a := s.current()
	if a == nil {
		return &api.GenerationResult{DebugLog: []string{"Agent not initialized"}}
	}
	return a.generator.Generate(ctx, req)
}

// Generate runs the generation loop without executing the result.
func (s *Service) Generate(ctx context.Context, req *api.GenerationRequest) (*api.GenerationResult, error) {
	if apiErr := api.ValidateGenerationRequest(req, s.opts.Validation); apiErr != nil {
		return nil, apiErr
	}
	if s.current() == nil {
		return nil, api.NewNotInitializedError()
	}
	res := s.runner.Generate(ctx, req)
	if !res.Success() {
		return res, &GenerationError{Message: api.MessageNoCode, DebugLog: res.DebugText()}
	}
	return res, nil
}

// GenerateAndRun generates code for req and runs it in the sandbox.
func (s *Service) GenerateAndRun(ctx context.Context, req *api.GenerationRequest) (*api.RunResult, error) {
	if apiErr := api.ValidateGenerationRequest(req, s.opts.Validation); apiErr != nil {
		return nil, apiErr
	}
	if s.current() == nil {
		return nil, api.NewNotInitializedError()
	}
	run := s.runner.GenerateAndExecute(ctx, req)
	if run.Error != "" {
		return run, &GenerationError{Message: run.Error, DebugLog: run.DebugLog}
	}
	return run, nil
}

// ExecuteRequest is a direct execution request.
type ExecuteRequest struct {
	Code         string
	Dependencies []string
	Timeout      time.Duration
}

// Execute runs code in the sandbox. It does not need an initialized agent.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*api.ExecutionResult, error) {
	if req.Code == "" {
		return nil, api.NewInvalidRequestError("code", "code must not be empty")
	}
	if req.Timeout < 0 {
		return nil, api.NewInvalidRequestError("timeout", "timeout must not be negative")
	}
	if req.Timeout > s.opts.MaxExecutionTimeout {
		return nil, api.NewInvalidRequestError("timeout",
			fmt.Sprintf("timeout exceeds maximum of %s", s.opts.MaxExecutionTimeout))
	}
	if apiErr := api.ValidateDependencies(req.Dependencies, s.opts.Validation); apiErr != nil {
		return nil, apiErr
	}
	return s.runner.Execute(ctx, &sandbox.Request{
		Code:         req.Code,
		Dependencies: req.Dependencies,
		Timeout:      req.Timeout,
	}), nil
}

// History lists recorded runs for the caller's tenant. Without a history
// store the list is empty.
func (s *Service) History(ctx context.Context, opts storage.ListOptions) ([]*api.RunRecord, error) {
	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return nil, api.NewInvalidRequestError("order", `order must be "asc" or "desc"`)
	}
	if s.opts.History == nil {
		return []*api.RunRecord{}, nil
	}
	runs, err := s.opts.History.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return runs, nil
}

// Ready reports whether the history store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	if s.opts.History == nil {
		return nil
	}
	return s.opts.History.HealthCheck(ctx)
}

// Close releases the current provider.
func (s *Service) Close() error {
	s.mu.Lock()
	a := s.agent
	s.agent = nil
	s.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.provider.Close()
}
