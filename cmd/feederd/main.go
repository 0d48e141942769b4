// Feeder Core - pet feeder backend
//
// feederd answers feeders polling for feed decisions, stores their logs and
// schedules, and serves the operator API and live event stream.
//
// Commands:
//
//	feederd [serve]              run the server (default)
//	feederd migrate up|down|status
//	feederd user add|passwd
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
	"github.com/nerrad567/feeder-core/internal/infrastructure/database"
	"github.com/nerrad567/feeder-core/internal/infrastructure/logging"
	"github.com/nerrad567/feeder-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancelled on Ctrl+C or SIGTERM; every command shuts down from it.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called above
	}
}

// newRootCmd builds the command tree. Running the root command alone serves.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "feederd",
		Short:         "Feeder Core server",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(),
		"path to configuration file (env FEEDER_CONFIG)")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newUserCmd(&configPath),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath)
		},
	}
}

// getConfigPath returns the configuration file path.
// Uses FEEDER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FEEDER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the configuration and builds the logger it describes.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

// openDatabase opens the SQLite database and applies pending migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Path)

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")
	return db, nil
}
