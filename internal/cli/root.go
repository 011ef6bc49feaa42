// Package cli implements the storyva CLI commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/storyva/storyva/internal/config"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "storyva",
	Short: "Voice director for story dialogue",
	Long: "StoryVA annotates story dialogue with TTS emotion markup through a " +
		"conversational director agent. The server exposes an HTTP API; the " +
		"subcommands cover validation, passage indexing, audio previews, and " +
		"serving the director tools over MCP.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
}

// loadConfig reads the configured YAML file. Commands that can run without a
// config file call this with optional=true and fall back to defaults.
func loadConfig(optional bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return &config.Config{}, nil
		}
		return nil, err
	}
	return cfg, nil
}

// initLogger installs the process-wide slog logger per the server config.
// When log_file is set, output goes to a size-rotated file as well as stderr.
func initLogger(cfg *config.Config) *slog.Logger {
	var lvl slog.Level
	switch cfg.Server.LogLevel {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if lf := cfg.Server.LogFile; lf != nil {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   lf.Path,
			MaxSize:    lf.MaxSizeMB,
			MaxBackups: lf.MaxBackups,
			MaxAge:     lf.MaxAgeDays,
			Compress:   lf.Compress,
		})
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "storyva: %s: %v\n", msg, err)
	os.Exit(1)
}
