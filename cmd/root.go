package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/mimic/internal/config"
	"github.com/andresmejia3/mimic/internal/store"
	"github.com/andresmejia3/mimic/internal/utils"
	"github.com/spf13/cobra"
)

// Options holds shared configuration for the reenact and live commands
type Options struct {
	PhotoPath     string
	InputPath     string
	OutputPath    string
	NumEngines    int
	Layout        string
	Opacity       float64
	Interpolation string
	NoMesh        bool
	WorkerTimeout string
	Refresh       bool
}

// dbAnnotation marks how a command uses the database.
const dbAnnotation = "db"

const (
	dbRequired = "required"
	dbOptional = "optional"
)

var (
	// DB is the global database connection shared by subcommands.
	// It stays nil for commands that work without one.
	DB *store.Store
	// Cfg is the loaded mimic.yaml with defaults applied
	Cfg config.Config

	dbURL      string
	configPath string
	verbose    bool
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "mimic",
	Short:   "Animate a still photo with a live face using a triangulated landmark warp",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.SetVerbose(verbose)

		var err error
		Cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		mode := cmd.Annotations[dbAnnotation]
		if mode == "" {
			return nil
		}

		url := resolveDBURL(dbURL, Cfg.Database)
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			if mode == dbOptional {
				fmt.Fprintf(os.Stderr, "⚠️  Database unavailable, photo analysis will not be cached: %v\n", err)
				DB = nil
				return nil
			}
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		utils.Debugf("connected to %s", url)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
			DB = nil
		}
	},
}

// resolveDBURL picks the connection string: flag, then config file, then POSTGRES_* variables,
// then the local default.
func resolveDBURL(flag, fromConfig string) string {
	if flag != "" {
		return flag
	}
	if fromConfig != "" {
		return fromConfig
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
	// Fallback to local default if no env vars are present
	return "postgres://localhost:5432/mimic"
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
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/mimic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a settings file (default: ./mimic.yaml if present)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Print diagnostic output")
}
