package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/provider"
	"github.com/rhuss/aython/pkg/sandbox"
	"github.com/rhuss/aython/pkg/storage"
	"github.com/rhuss/aython/pkg/storage/memory"
)

// fakeProvider answers every call with the same text.
type fakeProvider struct {
	text   string
	err    error
	closed atomic.Bool
}

func (p *fakeProvider) Name() string                        { return "fake" }
func (p *fakeProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }
func (p *fakeProvider) Close() error                        { p.closed.Store(true); return nil }
func (p *fakeProvider) Complete(context.Context, *provider.Request) (*provider.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &provider.Response{Text: p.text}, nil
}

type recordingSandbox struct {
	mu    sync.Mutex
	calls []*sandbox.Request
}

func (s *recordingSandbox) Name() string { return "recording" }
func (s *recordingSandbox) Execute(_ context.Context, req *sandbox.Request) *api.ExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return &api.ExecutionResult{Stdout: "ran: " + req.Code + "\n"}
}

type fixture struct {
	svc       *Service
	sandbox   *recordingSandbox
	history   *memory.Store
	providers []*fakeProvider
	models    []string
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	f := &fixture{sandbox: &recordingSandbox{}, history: memory.New(100)}
	svc, err := New(Options{
		NewProvider: func(_ context.Context, model string) (provider.Provider, error) {
			if model == "broken-model" {
				return nil, errors.New("unsupported model")
			}
			p := &fakeProvider{text: reply}
			f.providers = append(f.providers, p)
			f.models = append(f.models, model)
			return p, nil
		},
		Sandbox:      f.sandbox,
		History:      f.history,
		DefaultModel: "gpt-4o-mini",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.svc = svc
	t.Cleanup(func() { svc.Close() })
	return f
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Options{Sandbox: &recordingSandbox{}}); err == nil {
		t.Error("expected error without provider factory")
	}
	factory := func(context.Context, string) (provider.Provider, error) { return &fakeProvider{}, nil }
	if _, err := New(Options{NewProvider: factory}); err == nil {
		t.Error("expected error without sandbox")
	}
}

func TestInit(t *testing.T) {
	f := newFixture(t, "print('hi')")
	ctx := context.Background()

	msg, err := f.svc.Init(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if msg != "Aython initialized with model gpt-4o-mini" {
		t.Errorf("message = %q", msg)
	}

	msg, err = f.svc.Init(ctx, "claude-sonnet-4")
	if err != nil {
		t.Fatal(err)
	}
	if msg != "Aython initialized with model claude-sonnet-4" || f.svc.Model() != "claude-sonnet-4" {
		t.Errorf("message = %q, model = %q", msg, f.svc.Model())
	}
	if !f.providers[0].closed.Load() {
		t.Error("previous provider was not closed")
	}

	if _, err := f.svc.Init(ctx, "broken-model"); err == nil {
		t.Error("expected init failure")
	}
	if f.svc.Model() != "claude-sonnet-4" {
		t.Error("failed init replaced the agent")
	}
}

func TestInit_NoModel(t *testing.T) {
	svc, err := New(Options{
		NewProvider: func(context.Context, string) (provider.Provider, error) { return &fakeProvider{}, nil },
		Sandbox:     &recordingSandbox{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Init(context.Background(), ""); err == nil {
		t.Error("expected error without any model")
	}
}

func TestGenerateAndRun_NotInitialized(t *testing.T) {
	f := newFixture(t, "print('hi')")
	_, err := f.svc.GenerateAndRun(context.Background(), &api.GenerationRequest{Requirement: "say hi"})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeNotInitialized {
		t.Errorf("got %v, want not initialized", err)
	}
	if len(f.sandbox.calls) != 0 {
		t.Error("sandbox was called")
	}
}

func TestGenerateAndRun(t *testing.T) {
	f := newFixture(t, "```python\nprint('hi')\n```")
	ctx := context.Background()
	if _, err := f.svc.Init(ctx, ""); err != nil {
		t.Fatal(err)
	}

	run, err := f.svc.GenerateAndRun(ctx, &api.GenerationRequest{Requirement: "say hi"})
	if err != nil {
		t.Fatal(err)
	}
	if run.Code != "print('hi')" {
		t.Errorf("code = %q", run.Code)
	}
	if run.Execution == nil || run.Execution.Stdout != "ran: print('hi')\n" {
		t.Errorf("execution = %+v", run.Execution)
	}
	if f.history.Len() != 1 {
		t.Errorf("history holds %d runs, want 1", f.history.Len())
	}
}

func TestGenerateAndRun_GenerationFails(t *testing.T) {
	f := newFixture(t, "def broken(:")
	ctx := context.Background()
	if _, err := f.svc.Init(ctx, ""); err != nil {
		t.Fatal(err)
	}

	run, err := f.svc.GenerateAndRun(ctx, &api.GenerationRequest{Requirement: "anything"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("got %v, want GenerationError", err)
	}
	if genErr.Message != api.MessageNoCode {
		t.Errorf("message = %q", genErr.Message)
	}
	if !strings.Contains(genErr.DebugLog, "[Attempt 1]") {
		t.Errorf("debug log = %q", genErr.DebugLog)
	}
	if run == nil || run.Execution != nil {
		t.Errorf("run = %+v", run)
	}
	if len(f.sandbox.calls) != 0 {
		t.Error("sandbox was called for failed generation")
	}
}

func TestGenerateAndRun_InvalidRequest(t *testing.T) {
	f := newFixture(t, "print(1)")
	_, err := f.svc.GenerateAndRun(context.Background(), &api.GenerationRequest{Requirement: "  "})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Param != "requirements" {
		t.Errorf("got %v", err)
	}
}

func TestGenerate(t *testing.T) {
	f := newFixture(t, `{"code_snippet": "x = 1\nprint(x)"}`)
	ctx := context.Background()
	if _, err := f.svc.Generate(ctx, &api.GenerationRequest{Requirement: "x"}); err == nil {
		t.Error("expected not initialized error")
	}
	if _, err := f.svc.Init(ctx, "gpt-4o"); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.Generate(ctx, &api.GenerationRequest{Requirement: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Code != "x = 1\nprint(x)" || res.Attempts != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(f.sandbox.calls) != 0 {
		t.Error("generate must not execute")
	}
}

func TestExecute(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	res, err := f.svc.Execute(ctx, ExecuteRequest{Code: "print(1)", Dependencies: []string{"requests>=2"}, Timeout: 3 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "ran: print(1)\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	got := f.sandbox.calls[0]
	if got.Timeout != 3*time.Second || len(got.Dependencies) != 1 {
		t.Errorf("sandbox request = %+v", got)
	}

	if _, err := f.svc.Execute(ctx, ExecuteRequest{Code: "print(2)"}); err != nil {
		t.Fatal(err)
	}
	if f.sandbox.calls[1].Timeout != sandbox.DefaultTimeout {
		t.Errorf("default timeout = %v", f.sandbox.calls[1].Timeout)
	}
}

func TestExecute_Invalid(t *testing.T) {
	f := newFixture(t, "")
	tests := []struct {
		name  string
		req   ExecuteRequest
		param string
	}{
		{"empty code", ExecuteRequest{}, "code"},
		{"negative timeout", ExecuteRequest{Code: "x", Timeout: -time.Second}, "timeout"},
		{"huge timeout", ExecuteRequest{Code: "x", Timeout: time.Hour}, "timeout"},
		{"bad dep", ExecuteRequest{Code: "x", Dependencies: []string{"requests; rm -rf /"}}, "deps[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Execute(context.Background(), tt.req)
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) || apiErr.Param != tt.param {
				t.Errorf("got %v, want param %q", err, tt.param)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t, "print('hi')")
	ctx := context.Background()
	if _, err := f.svc.Init(ctx, ""); err != nil {
		t.Fatal(err)
	}
	for _, req := range []string{"one", "two", "three"} {
		if _, err := f.svc.GenerateAndRun(ctx, &api.GenerationRequest{Requirement: req}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := f.svc.History(ctx, storage.ListOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Requirement != "three" {
		t.Errorf("runs = %+v", runs)
	}

	if _, err := f.svc.History(ctx, storage.ListOptions{Order: "sideways"}); err == nil {
		t.Error("expected invalid order error")
	}
}

func TestHistory_Disabled(t *testing.T) {
	svc, err := New(Options{
		NewProvider: func(context.Context, string) (provider.Provider, error) { return &fakeProvider{}, nil },
		Sandbox:     &recordingSandbox{},
	})
	if err != nil {
		t.Fatal(err)
	}
	runs, err := svc.History(context.Background(), storage.ListOptions{})
	if err != nil || runs == nil || len(runs) != 0 {
		t.Errorf("runs = %v, err = %v", runs, err)
	}
	if err := svc.Ready(context.Background()); err != nil {
		t.Errorf("Ready = %v", err)
	}
}

func TestHistory_TenantScoped(t *testing.T) {
	f := newFixture(t, "print('hi')")
	if _, err := f.svc.Init(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	alice := storage.SetTenant(context.Background(), "alice")
	bob := storage.SetTenant(context.Background(), "bob")
	if _, err := f.svc.GenerateAndRun(alice, &api.GenerationRequest{Requirement: "alice's run"}); err != nil {
		t.Fatal(err)
	}

	runs, _ := f.svc.History(bob, storage.ListOptions{})
	if len(runs) != 0 {
		t.Errorf("bob sees %d runs", len(runs))
	}
	runs, _ = f.svc.History(alice, storage.ListOptions{})
	if len(runs) != 1 {
		t.Errorf("alice sees %d runs", len(runs))
	}
}
