// Command navgraph grows, inspects and queries navigation meshes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/navgraph"
	"github.com/hupe1980/navgraph/blobstore"
)

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "navgraph",
		Short: "Grow, inspect and query navigation meshes",
		Long: `navgraph manages the region files of a navigation mesh: it can grow a
mesh in a synthetic world, report what is stored, run path queries against
stored regions and upgrade legacy files.`,
		SilenceUsage: true,
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(simulateCmd, inspectCmd, pathCmd, migrateCmd)
}

// env is what every subcommand opens before it runs.
type env struct {
	cfg    *Config
	logger *navgraph.Logger
	blobs  blobstore.Store
	close  func() error
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if _, err := cfg.Logging.level(); err != nil {
			return nil, err
		}
	}
	logger := cfg.Logging.logger(cmd.ErrOrStderr())

	blobs, closer, err := openStore(cmd.Context(), cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}
	return &env{cfg: cfg, logger: logger, blobs: blobs, close: closer}, nil
}
