package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mediagate/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	flagConfig string
	flagDebug  bool
)

// cfg holds the loaded configuration (defaults < config file < environment < flags).
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mediagate",
	Short: "Media download service for social media URLs",
	Long: `mediagate extracts photos and videos from social media posts and hands
them back as a single file or a ZIP archive. Without a subcommand it serves
the HTTP API.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              serveRun,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default $MEDIAGATE_CONFIG or ./mediagate.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging and gin debug mode")

	rootCmd.AddCommand(serveCmd, infoCmd, fetchCmd, sweepCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	path := flagConfig
	if path == "" {
		path = os.Getenv("MEDIAGATE_CONFIG")
	}
	if path == "" {
		path = "mediagate.toml"
	}

	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagDebug {
		cfg.Debug = true
	}
	return nil
}
