package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/service"
)

type generateFlags struct {
	model    string
	context  string
	deps     []string
	debugLog bool
}

func (f *generateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Model to use (default: provider.model)")
	cmd.Flags().StringVar(&f.context, "context", "", "Code or notes the snippet may rely on")
	cmd.Flags().StringSliceVar(&f.deps, "deps", nil, "pip requirement specifiers to install")
	cmd.Flags().BoolVar(&f.debugLog, "debug-log", false, "Print the generation debug log to stderr")
}

func (f *generateFlags) request(args []string) *api.GenerationRequest {
	return &api.GenerationRequest{
		Requirement:  strings.Join(args, " "),
		Context:      f.context,
		Dependencies: f.deps,
	}
}

func newRunCmd(root *rootFlags) *cobra.Command {
	var flags generateFlags

	cmd := &cobra.Command{
		Use:     "run <requirement>",
		Short:   "Generate code for a requirement and run it",
		Example: `  aython run "print the first 10 primes"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := root.components(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			if _, err := comps.Service.Init(cmd.Context(), flags.model); err != nil {
				return fmt.Errorf("initializing agent: %w", err)
			}
			run, err := comps.Service.GenerateAndRun(cmd.Context(), flags.request(args))
			if flags.debugLog && run != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), run.DebugLog)
			}
			if err != nil {
				return generationFailure(cmd.ErrOrStderr(), err, flags.debugLog)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "```python\n%s\n```\n", run.Code)
			printExecution(out, cmd.ErrOrStderr(), run.Execution)
			return exitStatus(run.Execution.ExitCode)
		},
	}
	flags.register(cmd)
	return cmd
}

func newGenerateCmd(root *rootFlags) *cobra.Command {
	var flags generateFlags

	cmd := &cobra.Command{
		Use:     "generate <requirement>",
		Short:   "Generate code for a requirement without running it",
		Example: `  aython generate --debug-log "parse a CSV file and sum the second column"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := root.components(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			if _, err := comps.Service.Init(cmd.Context(), flags.model); err != nil {
				return fmt.Errorf("initializing agent: %w", err)
			}
			res, err := comps.Service.Generate(cmd.Context(), flags.request(args))
			if flags.debugLog && res != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), res.DebugText())
			}
			if err != nil {
				return generationFailure(cmd.ErrOrStderr(), err, flags.debugLog)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Code)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// generationFailure prints the debug log of a failed generation unless it
// was printed already.
func generationFailure(stderr io.Writer, err error, printed bool) error {
	var genErr *service.GenerationError
	if errors.As(err, &genErr) && !printed {
		fmt.Fprintln(stderr, genErr.DebugLog)
	}
	return err
}

func printExecution(stdout, stderr io.Writer, res *api.ExecutionResult) {
	if res == nil {
		return
	}
	io.WriteString(stdout, res.Stdout)
	io.WriteString(stderr, res.Stderr)
}
