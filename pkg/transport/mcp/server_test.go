package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/service"
)

type fakeAgent struct {
	mu       sync.Mutex
	model    string
	inits    int
	execs    []service.ExecuteRequest
	genErr   error
	runCode  string
	execResp *api.ExecutionResult
}

func (a *fakeAgent) Init(_ context.Context, model string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inits++
	if model == "" {
		model = "gpt-4o-mini"
	}
	a.model = model
	return "Aython initialized with model " + model, nil
}

func (a *fakeAgent) Model() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model
}

func (a *fakeAgent) Generate(_ context.Context, req *api.GenerationRequest) (*api.GenerationResult, error) {
	if a.genErr != nil {
		return nil, a.genErr
	}
	return &api.GenerationResult{Code: a.runCode, Attempts: 1}, nil
}

func (a *fakeAgent) GenerateAndRun(_ context.Context, req *api.GenerationRequest) (*api.RunResult, error) {
	if a.Model() == "" {
		return nil, api.NewNotInitializedError()
	}
	if a.genErr != nil {
		return nil, a.genErr
	}
	return &api.RunResult{Code: a.runCode, Execution: a.execResp}, nil
}

func (a *fakeAgent) Execute(_ context.Context, req service.ExecuteRequest) (*api.ExecutionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if req.Code == "" {
		return nil, api.NewInvalidRequestError("code", "code must not be empty")
	}
	a.execs = append(a.execs, req)
	return a.execResp, nil
}

func connect(t *testing.T, agent Agent, opts Options) *mcp.ClientSession {
	t.Helper()
	server := NewServer(agent, opts)
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callTool(t *testing.T, s *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func text(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func structured(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	data, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode structured content %s: %v", data, err)
	}
}

func TestListTools(t *testing.T) {
	s := connect(t, &fakeAgent{}, Options{})
	res, err := s.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"execute_code", "generate_and_run", "generate_code"}) {
		t.Errorf("tools = %v", names)
	}
}

func TestExecuteCode(t *testing.T) {
	agent := &fakeAgent{execResp: &api.ExecutionResult{ExitCode: 0, Stdout: "42\n"}}
	s := connect(t, agent, Options{})

	res := callTool(t, s, "execute_code", map[string]any{"code": "print(42)", "timeout": 1.5})
	if res.IsError {
		t.Fatalf("tool error: %s", text(res))
	}
	var out ExecuteOutput
	structured(t, res, &out)
	if out.ExitCode != 0 || out.Stdout != "42\n" {
		t.Errorf("output = %+v", out)
	}
	if !strings.Contains(text(res), "exit code: 0") {
		t.Errorf("text = %q", text(res))
	}
	if agent.execs[0].Timeout != 1500*time.Millisecond {
		t.Errorf("timeout = %v", agent.execs[0].Timeout)
	}
}

func TestExecuteCode_InvalidRequest(t *testing.T) {
	s := connect(t, &fakeAgent{}, Options{})
	res := callTool(t, s, "execute_code", map[string]any{"code": ""})
	if !res.IsError || !strings.Contains(text(res), "code must not be empty") {
		t.Errorf("got IsError=%v %q", res.IsError, text(res))
	}
}

func TestGenerateAndRun_AutoInit(t *testing.T) {
	agent := &fakeAgent{runCode: "print('hi')", execResp: &api.ExecutionResult{Stdout: "hi\n"}}
	s := connect(t, agent, Options{AutoInit: true})

	res := callTool(t, s, "generate_and_run", map[string]any{"requirements": "say hi"})
	if res.IsError {
		t.Fatalf("tool error: %s", text(res))
	}
	var out RunOutput
	structured(t, res, &out)
	if out.Code != "print('hi')" || out.Execution.Stdout != "hi\n" {
		t.Errorf("output = %+v", out)
	}
	callTool(t, s, "generate_and_run", map[string]any{"requirements": "again"})
	if agent.inits != 1 {
		t.Errorf("init called %d times", agent.inits)
	}
}

func TestGenerateAndRun_NotInitialized(t *testing.T) {
	s := connect(t, &fakeAgent{}, Options{})
	res := callTool(t, s, "generate_and_run", map[string]any{"requirements": "say hi"})
	if !res.IsError || !strings.Contains(text(res), "Agent not initialized") {
		t.Errorf("got IsError=%v %q", res.IsError, text(res))
	}
}

func TestGenerateCode_Failure(t *testing.T) {
	agent := &fakeAgent{genErr: &service.GenerationError{
		Message:  api.MessageNoCode,
		DebugLog: "[Attempt 1] invalid syntax",
	}}
	s := connect(t, agent, Options{AutoInit: true})
	res := callTool(t, s, "generate_code", map[string]any{"requirements": "x"})
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	if got := text(res); !strings.Contains(got, "No code generated") || !strings.Contains(got, "[Attempt 1]") {
		t.Errorf("text = %q", got)
	}
}

func TestGenerateCode(t *testing.T) {
	s := connect(t, &fakeAgent{runCode: "x = 1"}, Options{AutoInit: true})
	res := callTool(t, s, "generate_code", map[string]any{"requirements": "x"})
	if res.IsError {
		t.Fatalf("tool error: %s", text(res))
	}
	var out GenerateOutput
	structured(t, res, &out)
	if out.Code != "x = 1" || out.Attempts != 1 {
		t.Errorf("output = %+v", out)
	}
}

func TestToolError(t *testing.T) {
	plain := errors.New("boom")
	if toolError(plain) != plain {
		t.Error("plain errors pass through")
	}
	if got := toolError(api.NewInvalidRequestError("deps", "bad dep")).Error(); got != "bad dep" {
		t.Errorf("api error = %q", got)
	}
}
