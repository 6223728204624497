package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"promixer/config"
	"promixer/internal/application"
	"promixer/internal/infra/portaudio"
	"promixer/internal/infra/virtual"
)

var (
	argConfig  string
	argBackend string

	rootCmd = &cobra.Command{
		Use:           "promixer",
		Short:         "Multi-bus real-time audio mixer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&argConfig, "config", "c", "", "path to config file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVarP(&argBackend, "backend", "b", "", "device backend: portaudio or virtual (overrides config)")

	rootCmd.AddCommand(runCmd, devicesCmd, toneCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("promixer failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, or the defaults when none is given, and
// applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if argConfig != "" {
		loaded, err := config.Load(argConfig)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if argBackend != "" {
		cfg.Audio.Backend = argBackend
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

func openBackend(name string, logger *slog.Logger) (application.DeviceBackend, error) {
	switch name {
	case "virtual":
		return virtual.New(logger), nil
	case "portaudio":
		b, err := portaudio.New(logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", name)
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
