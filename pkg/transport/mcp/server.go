// Package mcp exposes the agent as Model Context Protocol tools over
// streamable HTTP: generate_code, execute_code and generate_and_run.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/debug"
	"github.com/rhuss/aython/pkg/service"
)

// Agent is the part of service.Service the tools call.
type Agent interface {
	Init(ctx context.Context, model string) (string, error)
	Model() string
	Generate(ctx context.Context, req *api.GenerationRequest) (*api.GenerationResult, error)
	GenerateAndRun(ctx context.Context, req *api.GenerationRequest) (*api.RunResult, error)
	Execute(ctx context.Context, req service.ExecuteRequest) (*api.ExecutionResult, error)
}

var _ Agent = (*service.Service)(nil)

// Options configure the MCP server.
type Options struct {
	// Name and Version identify the server to clients.
	Name    string
	Version string
	// AutoInit initializes the agent with its default model on the first
	// generation call. MCP clients have no init_agent step.
	AutoInit bool
}

// GenerateInput is the input of generate_code and generate_and_run.
type GenerateInput struct {
	Requirements string   `json:"requirements" jsonschema:"what the Python snippet must do"`
	Context      string   `json:"context,omitempty" jsonschema:"optional code or notes the snippet may rely on"`
	Deps         []string `json:"deps,omitempty" jsonschema:"pip requirement specifiers to install"`
}

func (in GenerateInput) request() *api.GenerationRequest {
	return &api.GenerationRequest{Requirement: in.Requirements, Context: in.Context, Dependencies: in.Deps}
}

// GenerateOutput is the output of generate_code.
type GenerateOutput struct {
	Code     string   `json:"code_snippet"`
	Deps     []string `json:"deps,omitempty"`
	Attempts int      `json:"attempts"`
}

// ExecuteInput is the input of execute_code.
type ExecuteInput struct {
	Code    string   `json:"code" jsonschema:"Python source to run"`
	Timeout float64  `json:"timeout,omitempty" jsonschema:"timeout in seconds"`
	Deps    []string `json:"deps,omitempty" jsonschema:"pip requirement specifiers to install"`
}

// ExecuteOutput is the output of execute_code.
type ExecuteOutput struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// RunOutput is the output of generate_and_run.
type RunOutput struct {
	Code      string        `json:"code_snippet"`
	Execution ExecuteOutput `json:"execution_result"`
}

func executeOutput(r *api.ExecutionResult) ExecuteOutput {
	if r == nil {
		return ExecuteOutput{ExitCode: api.ExitSandboxFailure}
	}
	return ExecuteOutput{ExitCode: r.ExitCode, Stdout: r.Stdout, Stderr: r.Stderr}
}

type tools struct {
	agent Agent
	opts  Options
}

// NewServer creates an MCP server whose tools call agent.
func NewServer(agent Agent, opts Options) *mcp.Server {
	if opts.Name == "" {
		opts.Name = "aython"
	}
	if opts.Version == "" {
		opts.Version = "v1.0.0"
	}
	t := &tools{agent: agent, opts: opts}

	server := mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_code",
		Description: "Generate a Python snippet for a requirement and check its syntax. The code is not executed.",
	}, t.generateCode)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "execute_code",
		Description: "Run a Python snippet in the sandbox and return its exit code and output.",
	}, t.executeCode)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_and_run",
		Description: "Generate a Python snippet for a requirement and run it in the sandbox.",
	}, t.generateAndRun)

	return server
}

// Handler serves server over streamable HTTP.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func (t *tools) ensureInit(ctx context.Context) error {
	if !t.opts.AutoInit || t.agent.Model() != "" {
		return nil
	}
	msg, err := t.agent.Init(ctx, "")
	if err != nil {
		return fmt.Errorf("initializing agent: %w", err)
	}
	debug.Log("transport", msg)
	return nil
}

func (t *tools) generateCode(ctx context.Context, _ *mcp.CallToolRequest, in GenerateInput) (*mcp.CallToolResult, GenerateOutput, error) {
	if err := t.ensureInit(ctx); err != nil {
		return nil, GenerateOutput{}, err
	}
	res, err := t.agent.Generate(ctx, in.request())
	if err != nil {
		return nil, GenerateOutput{}, toolError(err)
	}
	out := GenerateOutput{Code: res.Code, Deps: res.Dependencies, Attempts: res.Attempts}
	return textResult(res.Code), out, nil
}

func (t *tools) executeCode(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteInput) (*mcp.CallToolResult, ExecuteOutput, error) {
	res, err := t.agent.Execute(ctx, service.ExecuteRequest{
		Code:         in.Code,
		Dependencies: in.Deps,
		Timeout:      time.Duration(in.Timeout * float64(time.Second)),
	})
	if err != nil {
		return nil, ExecuteOutput{}, toolError(err)
	}
	out := executeOutput(res)
	return textResult(formatExecution(out)), out, nil
}

func (t *tools) generateAndRun(ctx context.Context, _ *mcp.CallToolRequest, in GenerateInput) (*mcp.CallToolResult, RunOutput, error) {
	if err := t.ensureInit(ctx); err != nil {
		return nil, RunOutput{}, err
	}
	run, err := t.agent.GenerateAndRun(ctx, in.request())
	if err != nil {
		return nil, RunOutput{}, toolError(err)
	}
	out := RunOutput{Code: run.Code, Execution: executeOutput(run.Execution)}
	text := fmt.Sprintf("```python\n%s\n```\n\n%s", run.Code, formatExecution(out.Execution))
	return textResult(text), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func formatExecution(out ExecuteOutput) string {
	s := fmt.Sprintf("exit code: %d", out.ExitCode)
	if out.Stdout != "" {
		s += "\nstdout:\n" + out.Stdout
	}
	if out.Stderr != "" {
		s += "\nstderr:\n" + out.Stderr
	}
	return s
}

// toolError keeps the generation debug log in the message so MCP clients
// see why every attempt failed.
func toolError(err error) error {
	var genErr *service.GenerationError
	if errors.As(err, &genErr) && genErr.DebugLog != "" {
		return fmt.Errorf("%s\n\n%s", genErr.Message, genErr.DebugLog)
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return errors.New(apiErr.Message)
	}
	return err
}
