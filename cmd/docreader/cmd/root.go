// Package cmd implements the docreader CLI: parse documents, and manage
// model delivery, on top of internal/pipeline, internal/delivery, and
// internal/config (spec §4.1, §4.6; teacher-grounded in cmd/ocr/cmd).
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/docreader-go/docreader/internal/config"
	"github.com/docreader-go/docreader/internal/version"
)

var (
	configLoader *config.Loader
	cfgFile      string
)

var rootCmd = &cobra.Command{
	Use:   "docreader",
	Short: "On-device document understanding: layout detection, recognition, and Markdown formatting",
	Long: `docreader turns a page image or PDF into Markdown by running a layout
detector over each page, recognizing each detected region with a
multimodal model, and formatting the recognized regions deterministically.

Examples:
  docreader parse report.pdf --format markdown
  docreader models ensure
  docreader models verify`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command; it's the only symbol main.main calls.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	v, commit, date := version.Info()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, commit, date)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: search ., $HOME, $HOME/.config/docreader, /etc/docreader)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("models-dir", "", "directory for downloaded model snapshots")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
	if err := viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
	if err := viper.BindPFlag("models_dir", rootCmd.PersistentFlags().Lookup("models-dir")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func initConfig() {
	configLoader = config.NewLoader()
}

func getConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}

// loadConfig loads and validates the effective configuration from the
// config file (if --config was given), environment, flags, and defaults.
func loadConfig() (*config.Config, error) {
	loader := getConfigLoader()
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = loader.LoadWithFile(cfgFile)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
