package main

import (
	"context"
	"fmt"

	"github.com/aescanero/patchwork/internal/application/components"
	"github.com/aescanero/patchwork/internal/application/worker"
	"github.com/aescanero/patchwork/internal/config"
	"github.com/aescanero/patchwork/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// exitError carries a worker exit code out of cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

// newRootCommand creates the root command; with no subcommand it runs the worker
func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "patchwork",
		Short:         "Patchwork - supervised worker process",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), configFile)
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to settings file (default: $PATCHWORK_CONFIG or patchwork.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the worker until it is terminated",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWorker(cmd.Context(), configFile)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check a settings file and the component kinds it names",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				settings, err := loadSettings(configFile)
				if err != nil {
					return err
				}
				if err := checkKinds(settings); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "settings are valid")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "patchwork %s (built %s)\n", Version, BuildTime)
			},
		},
	)

	return root
}

// loadSettings resolves the config path and loads settings
func loadSettings(path string) (*config.Settings, error) {
	if path == "" {
		boot, err := config.LoadBootstrap()
		if err != nil {
			return nil, err
		}
		path = boot.ConfigFile
	}

	settings, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return settings, nil
}

// checkKinds builds every component without starting any
func checkKinds(settings *config.Settings) error {
	_, err := components.Builtin().Build(settings, components.Deps{
		Logger:    zap.NewNop(),
		Status:    nopStatus{},
		Terminate: func(int) {},
	})
	return err
}

// runWorker builds the worker from settings and runs it to completion
func runWorker(ctx context.Context, configFile string) error {
	settings, err := loadSettings(configFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(settings)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting patchwork",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	w, err := worker.New(settings, components.Builtin(), logger)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	code, err := w.Run(ctx)
	if code != worker.ExitOK || err != nil {
		return &exitError{code: code, err: err}
	}
	return nil
}
