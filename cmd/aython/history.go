package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/aython/pkg/debug"
	"github.com/rhuss/aython/pkg/service"
	"github.com/rhuss/aython/pkg/storage"
)

func newHistoryCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and export the run history",
	}
	cmd.AddCommand(newHistoryListCmd(root), newHistoryExportCmd(root))
	return cmd
}

func historyStore(root *rootFlags, cmd *cobra.Command) (storage.HistoryStore, error) {
	if root.cfg.Storage.Type == "none" {
		return nil, errors.New("history is disabled (storage.type is none)")
	}
	return service.NewHistory(cmd.Context(), root.cfg.Storage)
}

func newHistoryListCmd(root *rootFlags) *cobra.Command {
	var opts storage.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := historyStore(root, cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tMODEL\tEXIT\tREQUIREMENT")
			for _, r := range runs {
				exit := "-"
				if r.ExitCode != nil {
					exit = fmt.Sprint(*r.ExitCode)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Format(time.RFC3339), r.Model, exit, debug.Truncate(r.Requirement, 60))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", storage.DefaultListLimit, "Number of runs to show")
	cmd.Flags().StringVar(&opts.Model, "model", "", "Only show runs of this model")
	return cmd
}

func newHistoryExportCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the run history to a JSON file",
		Long:  "Write the run history to a JSON file. The default name is aython_history_<YYYYmmdd_HHMMSS>.json.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore(root, cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			path := storage.ExportFileName(time.Now())
			if len(args) == 1 {
				path = args[0]
			}
			n, err := storage.ExportJSON(cmd.Context(), store, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "History saved to %s (%d runs)\n", path, n)
			return nil
		},
	}
}
