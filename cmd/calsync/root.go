package main

import (
	"github.com/beekhof/lab-calendar-sync/internal/config"

	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigFile string
	EnvFile    string
	Verbose    bool
	JSON       bool
	Flags      config.Flags
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "calsync",
		Short: "Lab calendar sync",
		Long: `Imports Google Calendar and Microsoft 365 calendars of lab members into the
lab's canonical event store.

Each connection is synced incrementally: the first run fetches a bounded window
(6 months back, 12 months ahead by default), later runs only fetch changes using
the provider's continuation token. Every run appends a sync log.

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (CALSYNC_*, GOOGLE_*, MICROSOFT_*, SYNC_*), including .env
    3. Config file (--config, JSON or YAML)
    4. Defaults`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to JSON or YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output (show DEBUG logs)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "print results as JSON")
	cmd.PersistentFlags().StringVar(&opts.Flags.DatabaseDriver, "database-driver", "", "database driver: postgres or sqlite3 (overrides CALSYNC_DATABASE_DRIVER)")
	cmd.PersistentFlags().StringVar(&opts.Flags.DatabaseDSN, "database-dsn", "", "database DSN (overrides CALSYNC_DATABASE_DSN)")
	cmd.PersistentFlags().StringVar(&opts.Flags.RedisAddr, "redis-addr", "", "Redis address for the worker and the shared lease (overrides CALSYNC_REDIS_ADDR)")
	cmd.PersistentFlags().StringVar(&opts.Flags.TokenDir, "token-dir", "", "directory of per-connection token files (overrides CALSYNC_TOKEN_DIR)")
	cmd.PersistentFlags().StringVar(&opts.Flags.GoogleCredentialsPath, "google-credentials-path", "", "Google OAuth credentials JSON file (overrides GOOGLE_CREDENTIALS_PATH)")

	// Add subcommands
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newConnectCommand(opts))
	cmd.AddCommand(newConnectionsCommand(opts))
	cmd.AddCommand(newLogsCommand(opts))
	cmd.AddCommand(newConflictsCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newWorkerCommand(opts))

	return cmd
}
