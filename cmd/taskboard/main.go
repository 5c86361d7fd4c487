package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/taskboard/internal/config"
	"github.com/aristath/taskboard/internal/logging"
)

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRoot().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer

	// Flag overrides, applied after files and environment.
	serverURL string
	driver    string
	dsn       string
	logLevel  string
}

// loadConfig is replaced in tests.
var loadConfig = config.LoadDefault

func newRoot() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "taskboard",
		Short:         "Kanban task board with reassignment workflow",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.serverURL, "server", "", "taskboard server URL (overrides server_url)")
	flags.StringVar(&a.driver, "db-driver", "", "database driver: sqlite, memory or postgres")
	flags.StringVar(&a.dsn, "db-dsn", "", "database DSN or sqlite path")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")

	root.AddCommand(
		serveCmd(a),
		boardCmd(a),
		seedCmd(a),
		listCmd(a),
		configCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.serverURL != "" {
		cfg.ServerURL = a.serverURL
	}
	if a.driver != "" {
		cfg.Database.Driver = a.driver
	}
	if a.dsn != "" {
		cfg.Database.DSN = a.dsn
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The board owns the terminal, so it only logs to a file.
	if cmd.Name() == "board" && cfg.LogFile == "" {
		a.cfg, a.logger = cfg, logging.Discard()
		return nil
	}

	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.closer = cfg, logger, closer
	return nil
}
