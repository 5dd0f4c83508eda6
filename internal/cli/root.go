// Package cli wires the crawl-live-games command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/config"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "crawl-live-games",
		Short:         "Aggregate live DCSS WebTiles games into one JSON API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (.toml, .yaml, .json or .jsonc)")
	flags.String(config.KeyListen, ":8080", "HTTP listen address")
	flags.String(config.KeyLogLevel, "info", "log level")
	flags.String(config.KeyLogFormat, "json", "log format: json or console")
	flags.Duration(config.KeyProbeTimeout, 10*time.Second, "how long /gameinfo waits for a player")

	serveCmd := newServeCmd(&configPath)
	rootCmd.RunE = serveCmd.RunE

	rootCmd.AddCommand(
		serveCmd,
		newConfigCmd(&configPath),
		newVersionCmd(),
	)
	return rootCmd
}
