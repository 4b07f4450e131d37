package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rhuss/aython/pkg/config"
	"github.com/rhuss/aython/pkg/debug"
	"github.com/rhuss/aython/pkg/service"
)

type rootFlags struct {
	configPath string
	envFile    string
	logLevel   string
	debug      string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "aython",
		Short:         "Generate Python code with an LLM and run it in a sandbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return flags.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Environment file loaded before the config")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: TRACE, DEBUG, INFO, WARN or ERROR")
	cmd.PersistentFlags().StringVar(&flags.debug, "debug", "", "Debug categories, e.g. engine,sandbox or all")

	cmd.AddCommand(
		newServeCmd(&flags),
		newRunCmd(&flags),
		newGenerateCmd(&flags),
		newExecCmd(&flags),
		newHistoryCmd(&flags),
	)
	return cmd
}

// load reads the env file, the configuration and sets up logging.
func (f *rootFlags) load() error {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f.envFile, err)
		}
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	f.cfg = cfg

	debug.Init(debug.Options{Categories: f.debug, Level: f.logLevel})
	return nil
}

// components builds the service for one-shot commands.
func (f *rootFlags) components(cmd *cobra.Command) (*service.Components, error) {
	return service.FromConfig(cmd.Context(), f.cfg)
}
