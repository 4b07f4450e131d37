package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// compileOnly reads the snippet from stdin and compiles it. The compiled
// code object is discarded, so nothing from the snippet is executed.
const compileOnly = `import sys
src = sys.stdin.read()
try:
    compile(src, "<snippet>", "exec")
except (SyntaxError, ValueError) as e:
    sys.stderr.write("%s:%s:%s" % (getattr(e, "lineno", 0) or 0, getattr(e, "offset", 0) or 0, getattr(e, "msg", str(e))))
    sys.exit(3)
`

// exitSyntax is the status compileOnly uses to signal a rejected snippet.
const exitSyntax = 3

// Interpreter validates by compiling with a local Python interpreter.
type Interpreter struct {
	python  string
	timeout time.Duration
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithPython sets the interpreter binary (default "python3").
func WithPython(path string) InterpreterOption {
	return func(i *Interpreter) {
		if path != "" {
			i.python = path
		}
	}
}

// WithCheckTimeout bounds a single compile check (default 5s).
func WithCheckTimeout(d time.Duration) InterpreterOption {
	return func(i *Interpreter) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// NewInterpreter returns a validator backed by python3's compile().
func NewInterpreter(opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{python: "python3", timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Name implements Validator.
func (i *Interpreter) Name() string { return KindPython }

// Check implements Validator.
func (i *Interpreter) Check(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, i.python, "-I", "-c", compileOnly)
	cmd.Stdin = strings.NewReader(code)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("compile check: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitSyntax {
		return parseCompileError(stderr.String())
	}
	return fmt.Errorf("running %s: %w", i.python, err)
}

// parseCompileError decodes the "line:offset:message" line written by
// compileOnly.
func parseCompileError(out string) *SyntaxError {
	parts := strings.SplitN(strings.TrimSpace(out), ":", 3)
	if len(parts) != 3 {
		return &SyntaxError{Message: strings.TrimSpace(out)}
	}
	line, _ := strconv.Atoi(parts[0])
	col, _ := strconv.Atoi(parts[1])
	return &SyntaxError{Line: line, Column: col, Message: parts[2]}
}
