package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresmejia3/reframe/internal/config"
	"github.com/andresmejia3/reframe/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// ledgerAnnotation marks commands that cannot run without the run ledger.
const ledgerAnnotation = "ledger"

var (
	// DB is the global database connection shared by subcommands. Nil when
	// the ledger is disabled.
	DB *store.Store
	// dbURL is the connection string
	dbURL string

	configPath string
	verbose    bool

	// cfg is the merged configuration: defaults, then --config, then flags.
	cfg config.Config
	log zerolog.Logger
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "reframe",
	Short:   "Rebuild the frame order of a shuffled, corrupted video",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Verbose = true
		}
		log = newLogger(cfg.Verbose)

		url := resolveDBURL(dbURL, cmd.Annotations[ledgerAnnotation] != "")
		if url == "" {
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

// resolveDBURL picks the ledger connection string. The flag wins, then the
// POSTGRES_* environment. Commands that need the ledger fall back to a local
// default; the rest run without one.
func resolveDBURL(flag string, required bool) string {
	if flag != "" {
		return flag
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	if required {
		return "postgres://localhost:5432/reframe"
	}
	return ""
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the run ledger (default: $POSTGRES_HOST, disabled when unset)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML file with reconstruction defaults")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}
