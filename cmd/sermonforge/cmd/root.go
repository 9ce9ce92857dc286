// Package cmd implements the sermonforge CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	appcfg "github.com/jo-hoe/sermonforge/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "sermonforge",
	Short: "Durable pipeline that turns a recorded sermon into a finished, edited document",
	Long: `sermonforge advances jobs through a fixed eight-stage catalog — download,
segment extraction, transcription, paragraph formatting, metadata
extraction, editing, evaluation, and final chapter assembly — each stage
durable and independently retryable against a SQLite-backed job store.

Configuration is read from --config, then $SERMONFORGE_CONFIG, then
./config.yaml.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.yaml")
}

func newLogger(cfg *appcfg.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig() (*appcfg.Config, error) {
	cfg, err := appcfg.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
