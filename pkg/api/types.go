package api

import (
	"strings"
	"time"
)

// ExitSandboxFailure is the exit code reported when the sandbox itself
// failed (timeout, launch failure), as opposed to the program exiting
// with a nonzero status.
const ExitSandboxFailure = -1

// MessageTimedOut is the stderr text of a run that exceeded its timeout.
const MessageTimedOut = "execution timed out"

// MessageNoCode is the orchestration error when generation produced nothing.
const MessageNoCode = "No code generated"

// GenerationRequest is a single request to the generation loop.
type GenerationRequest struct {
	Requirement  string   `json:"requirements"`
	Context      string   `json:"context,omitempty"`
	Dependencies []string `json:"deps,omitempty"`
	Name         string   `json:"name,omitempty"`
}

// GenerationResult is the outcome of one generation loop invocation.
// An empty Code means every attempt failed.
type GenerationResult struct {
	Code         string   `json:"code_snippet"`
	Name         string   `json:"name,omitempty"`
	Dependencies []string `json:"deps,omitempty"`
	DebugLog     []string `json:"debug_log"`
	Attempts     int      `json:"attempts"`
	Model        string   `json:"model,omitempty"`
}

// Success reports whether the loop produced a validated snippet.
func (r *GenerationResult) Success() bool {
	return r != nil && r.Code != ""
}

// DebugText returns the debug log as a single newline separated string.
func (r *GenerationResult) DebugText() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.DebugLog, "\n")
}

// ExecutionResult is the outcome of running one snippet in a sandbox.
type ExecutionResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"-"`
}

// Succeeded reports whether the program exited with status zero.
func (r *ExecutionResult) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// SandboxFailure builds the result for a run the sandbox could not complete.
func SandboxFailure(message string) *ExecutionResult {
	return &ExecutionResult{ExitCode: ExitSandboxFailure, Stderr: message}
}

// TimedOut builds the result for a run that exceeded its timeout.
func TimedOut() *ExecutionResult {
	return SandboxFailure(MessageTimedOut)
}

// RunResult is the combined outcome of generating and executing a snippet.
// Error is empty on success. Execution is nil whenever generation failed.
type RunResult struct {
	ID        string           `json:"id"`
	Code      string           `json:"code_snippet"`
	Execution *ExecutionResult `json:"execution_result"`
	DebugLog  string           `json:"debug_log"`
	Error     string           `json:"error,omitempty"`
}

// RunRecord is a persisted history entry for one generate-and-execute run.
type RunRecord struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id,omitempty"`
	Requirement string    `json:"requirement"`
	Model       string    `json:"model,omitempty"`
	Code        string    `json:"code_snippet"`
	ExitCode    *int      `json:"exit_code,omitempty"`
	Stdout      string    `json:"stdout,omitempty"`
	Stderr      string    `json:"stderr,omitempty"`
	Error       string    `json:"error,omitempty"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewRunRecord flattens a run into a history entry.
func NewRunRecord(req *GenerationRequest, gen *GenerationResult, run *RunResult) *RunRecord {
	rec := &RunRecord{
		ID:          run.ID,
		Requirement: req.Requirement,
		Code:        run.Code,
		Error:       run.Error,
		CreatedAt:   time.Now().UTC(),
	}
	if gen != nil {
		rec.Model = gen.Model
		rec.Attempts = gen.Attempts
	}
	if run.Execution != nil {
		code := run.Execution.ExitCode
		rec.ExitCode = &code
		rec.Stdout = run.Execution.Stdout
		rec.Stderr = run.Execution.Stderr
	}
	return rec
}
