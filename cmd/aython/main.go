// Command aython generates Python snippets with an LLM and runs them in a
// sandbox. It serves the JSON-RPC agent and MCP tools (serve) and offers
// one-shot commands for generation, execution and history export.
//
// Configuration comes from a YAML file (--config, AYTHON_CONFIG,
// ./config.yaml or /etc/aython/config.yaml), AYTHON_* variables and an
// optional .env file. AGENT_PORT and MODEL are honored as well.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	var exitErr *exitCodeError
	switch {
	case errors.As(err, &exitErr):
		os.Exit(exitErr.code)
	case err != nil:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// exitCodeError carries the exit status of an executed snippet.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("snippet exited with status %d", e.code)
}

// exitStatus maps a snippet exit code to a process exit status. Sandbox
// failures (-1) become 1.
func exitStatus(code int) error {
	switch {
	case code == 0:
		return nil
	case code < 0 || code > 255:
		return &exitCodeError{code: 1}
	default:
		return &exitCodeError{code: code}
	}
}
