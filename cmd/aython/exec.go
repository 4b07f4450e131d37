package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/aython/pkg/service"
)

func newExecCmd(root *rootFlags) *cobra.Command {
	var (
		timeout time.Duration
		deps    []string
	)

	cmd := &cobra.Command{
		Use:   "exec <file.py>",
		Short: "Run a Python file in the configured sandbox",
		Long:  "Run a Python file in the configured sandbox. Use - to read the code from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			comps, err := root.components(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			res, err := comps.Service.Execute(cmd.Context(), service.ExecuteRequest{
				Code:         code,
				Dependencies: deps,
				Timeout:      timeout,
			})
			if err != nil {
				return err
			}
			printExecution(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
			return exitStatus(res.ExitCode)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Execution timeout (default: sandbox.timeout)")
	cmd.Flags().StringSliceVar(&deps, "deps", nil, "pip requirement specifiers to install")
	return cmd
}

func readSource(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
