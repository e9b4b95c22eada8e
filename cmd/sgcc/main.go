package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/sgcc/internal/config"
	"github.com/steveyegge/sgcc/internal/logging"
	"github.com/steveyegge/sgcc/internal/storage"
)

const version = "0.1.0"

// skipStore marks commands that run without an open database.
const skipStore = "skip-store"

var (
	configPath string
	dbFlag     string
	logLevel   string
	logFormat  string

	cfg    config.Config
	dbPath string
	store  storage.Storage
)

var rootCmd = &cobra.Command{
	Use:           "sgcc",
	Short:         "Connected components for record deduplication",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `sgcc groups candidate-duplicate records into clusters by computing the
connected components of their similarity graph with alternating large-star and
small-star rounds. Each node is mapped to the smallest id in its component.

Typical workflow:
  sgcc init
  sgcc import pairs.csv
  sgcc resolve --out mapping.csv
  sgcc lookup 42`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if dbFlag != "" {
			cfg.DBPath = dbFlag
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		slog.SetDefault(logger)
		ctx := logging.WithLogger(cmd.Context(), logger)
		cmd.SetContext(ctx)

		if cmd.Annotations[skipStore] == "true" {
			return nil
		}
		return openStore(ctx)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store == nil {
			return nil
		}
		err := store.Close()
		store = nil
		return err
	},
}

// openStore opens the configured backend, discovering the sqlite database
// when no path was given.
func openStore(ctx context.Context) error {
	if cfg.PostgresURL == "" {
		dbPath = cfg.DBPath
		if dbPath == "" {
			var err error
			if dbPath, err = storage.DiscoverDatabase(); err != nil {
				return err
			}
		}
	}

	st, err := storage.NewStorage(ctx, &storage.Config{Path: dbPath, PostgresURL: cfg.PostgresURL})
	if err != nil {
		return err
	}
	store = st
	logging.FromContext(ctx).Debug("storage opened", "path", dbPath, "postgres", cfg.PostgresURL != "")
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .sgcc/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path (default: discover .sgcc/*.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
