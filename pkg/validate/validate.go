// Package validate decides whether a snippet is syntactically valid Python
// without executing it.
//
// Two implementations are provided. [Interpreter] asks a local python3 to
// compile the source (compile only, nothing runs) and matches CPython
// exactly, including compile-time errors such as misplaced return or
// duplicate arguments. [TreeSitter] parses in-process with the tree-sitter
// Python grammar. It is more permissive than CPython and is used only when
// no interpreter can be found.
package validate

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Validator checks source text for syntax errors.
// Implementations must be safe for concurrent use.
type Validator interface {
	// Check returns nil when code parses, a *SyntaxError when it does not,
	// and any other error when the check itself could not run.
	Check(ctx context.Context, code string) error

	// Name identifies the implementation in logs and metrics.
	Name() string
}

// SyntaxError describes the first syntax problem found in a snippet.
// Line and Column are 1-based; zero means unknown.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return "syntax error: " + e.Message
}

// ErrEmpty is returned for blank snippets.
var ErrEmpty = &SyntaxError{Message: "empty snippet"}

// Valid reports whether code passes v. It never panics: check failures,
// internal errors and panics inside the validator all yield false.
func Valid(ctx context.Context, v Validator, code string) bool {
	return Explain(ctx, v, code) == nil
}

// Explain is like Valid but returns the reason a snippet was rejected.
func Explain(ctx context.Context, v Validator, code string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validator %s panicked: %v", v.Name(), r)
		}
	}()
	if strings.TrimSpace(code) == "" {
		return ErrEmpty
	}
	return v.Check(ctx, code)
}

// New returns the validator registered under kind. An empty kind selects
// Default.
func New(kind string, opts ...InterpreterOption) (Validator, error) {
	switch kind {
	case "", KindAuto:
		return Default(opts...), nil
	case KindTreeSitter:
		return NewTreeSitter(), nil
	case KindPython:
		return NewInterpreter(opts...), nil
	default:
		return nil, fmt.Errorf("unknown validator kind %q", kind)
	}
}

// Validator kinds accepted by New.
const (
	KindAuto       = "auto"
	KindTreeSitter = "treesitter"
	KindPython     = "python"
)

// Default returns the CPython validator when its interpreter resolves on
// PATH, and the tree-sitter validator otherwise.
func Default(opts ...InterpreterOption) Validator {
	i := NewInterpreter(opts...)
	if _, err := exec.LookPath(i.python); err != nil {
		return NewTreeSitter()
	}
	return i
}
