package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"promixer/config"
	"promixer/internal/application"
	"promixer/internal/domain"
	"promixer/internal/infra/control"
	"promixer/internal/infra/decode"
	"promixer/internal/infra/pushover"
	"promixer/internal/infra/resample"
	"promixer/internal/infra/wavfile"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the mixer until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func run(parent context.Context, cfg *config.Config) error {
	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			logger.Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	backend, err := openBackend(cfg.Audio.Backend, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	var notifiers application.Notifiers
	events := control.NewEventLog(0)
	if cfg.Control.Enabled {
		notifiers = append(notifiers, events)
	}
	if cfg.Pushover.Enabled {
		notifiers = append(notifiers, pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey, logger))
	}

	engine, err := newEngine(cfg, backend, logger, notifiers)
	if err != nil {
		return err
	}

	if cfg.StateFile != "" {
		if err := loadState(engine, cfg.StateFile); err != nil {
			logger.Warn("restoring state", "path", cfg.StateFile, "error", err)
		}
	}
	loadClips(engine, cfg, logger)
	applyBindings(engine, cfg.Bindings, logger)

	if cfg.Control.Enabled {
		server := control.NewServer(cfg.Control.Addr, cfg.Control.AuthToken, engine, events, logger)
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting control server: %w", err)
		}
		defer server.Stop()
	}

	err = engine.Run(ctx)

	if cfg.StateFile != "" {
		if saveErr := saveState(engine, cfg.StateFile); saveErr != nil {
			logger.Error("saving state", "path", cfg.StateFile, "error", saveErr)
		} else {
			logger.Info("state saved", "path", cfg.StateFile)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mixer error: %w", err)
	}
	return nil
}

// newEngine wires the engine with its resampler, decoder and recording
// writer. A nil or empty notifier list keeps the engine's no-op notifier.
func newEngine(cfg *config.Config, backend application.DeviceBackend, logger *slog.Logger, notifiers application.Notifiers) (*application.Engine, error) {
	resampler, err := resample.NewFactory(cfg.Engine.ResampleQuality, cfg.Engine.ClipResampleQuality)
	if err != nil {
		return nil, fmt.Errorf("configuring resampler: %w", err)
	}

	opts := []application.Option{
		application.WithResampler(resampler),
		application.WithDecoder(decode.New(logger)),
		application.WithRecordingWriter(wavfile.New(cfg.Engine.RecordingBitDepth, logger)),
	}
	if len(notifiers) > 0 {
		opts = append(opts, application.WithNotifier(notifiers))
	}

	engine, err := application.NewEngine(application.EngineConfig{
		SampleRate:              cfg.Engine.SampleRate,
		BlockSize:               cfg.Engine.BlockSize,
		QueueDepth:              cfg.Engine.QueueDepth,
		MainBus:                 cfg.Engine.MainBus,
		DefaultInputFaderDB:     *cfg.Engine.DefaultInputFaderDB,
		RecordingBus:            cfg.Engine.RecordingBus,
		RecordingDir:            cfg.Engine.RecordingDir,
		FallbackToDefaultOutput: cfg.Engine.FallbackToDefaultOutput,
		UnderrunWarnAfter:       cfg.Engine.UnderrunWarnAfter,
		DeviceCheckInterval:     cfg.CheckInterval(),
		Channels:                cfg.Specs(),
		Buses:                   cfg.Buses,
	}, backend, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}

// loadClips loads configured clips and every file in clip_dir. Clips already
// restored from the state file are kept as they are.
func loadClips(engine *application.Engine, cfg *config.Config, logger *slog.Logger) {
	for _, c := range cfg.Clips {
		name := c.Name
		if name == "" {
			name = clipName(c.Path)
		}
		if _, err := engine.Clips().Get(name); err != nil {
			if err := engine.LoadClip(c.Path, name); err != nil {
				logger.Warn("loading clip", "path", c.Path, "error", err)
				continue
			}
		}
		if c.Volume != nil {
			if err := engine.SetClipVolume(name, *c.Volume); err != nil {
				logger.Warn("setting clip volume", "clip", name, "error", err)
			}
		}
		if err := engine.SetClipLooping(name, c.Looping); err != nil {
			logger.Warn("setting clip looping", "clip", name, "error", err)
		}
	}

	if cfg.ClipDir == "" {
		return
	}
	paths, err := decode.ScanDir(cfg.ClipDir)
	if err != nil {
		logger.Warn("scanning clip dir", "dir", cfg.ClipDir, "error", err)
		return
	}
	for _, path := range paths {
		if _, err := engine.Clips().Get(clipName(path)); err == nil {
			continue
		}
		if err := engine.LoadClip(path, ""); err != nil {
			logger.Warn("loading clip", "path", path, "error", err)
		}
	}
}

func clipName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// applyBindings binds configured devices. An input already bound to the same
// device by the state file keeps its restored fader and routing.
func applyBindings(engine *application.Engine, b config.BindingsConfig, logger *slog.Logger) {
	for _, busID := range slices.Sorted(maps.Keys(b.Outputs)) {
		if err := engine.SetBusDevice(busID, b.Outputs[busID]); err != nil {
			logger.Warn("binding output", "bus", busID, "device", b.Outputs[busID], "error", err)
		}
	}
	for _, channelID := range slices.Sorted(maps.Keys(b.Inputs)) {
		deviceID := b.Inputs[channelID]
		if dev, ok := engine.InputDevice(channelID); ok && dev == deviceID {
			continue
		}
		if err := engine.StartInput(channelID, deviceID); err != nil {
			logger.Warn("binding input", "channel", channelID, "device", deviceID, "error", err)
		}
	}
}

func loadState(engine *application.Engine, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading state file: %w", err)
	}

	var state domain.State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parsing state file: %w", err)
	}
	return engine.Restore(state)
}

func saveState(engine *application.Engine, path string) error {
	data, err := yaml.Marshal(engine.State())
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating state dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return os.Rename(tmp, path)
}
