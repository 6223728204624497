package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"promixer/config"
	"promixer/internal/application"
	"promixer/internal/domain"
)

const toneID = "TONE"

var (
	argToneBus     string
	argToneDevice  int
	argToneFreq    float64
	argToneLevel   float64
	argToneSeconds float64

	toneCmd = &cobra.Command{
		Use:   "tone",
		Short: "Play a test tone through one bus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Log)

			backend, err := openBackend(cfg.Audio.Backend, logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			deviceID := argToneDevice
			if deviceID < 0 {
				if id, ok := cfg.Bindings.Outputs[argToneBus]; ok {
					deviceID = id
				} else {
					def, err := backend.DefaultOutput()
					if err != nil {
						return fmt.Errorf("no device for bus %s: %w", argToneBus, err)
					}
					deviceID = def.ID
				}
			}

			cfg.Channels = []config.ChannelConfig{{ID: toneID, Name: "Test Tone", Kind: string(domain.KindSynthetic)}}
			engine, err := newEngine(cfg, backend, logger, nil)
			if err != nil {
				return err
			}
			return playTone(cmd.Context(), engine, argToneBus, deviceID)
		},
	}
)

func init() {
	toneCmd.Flags().StringVar(&argToneBus, "bus", "A1", "bus to play the tone on")
	toneCmd.Flags().IntVar(&argToneDevice, "device", -1, "output device id (default: the bus binding or the default output)")
	toneCmd.Flags().Float64Var(&argToneFreq, "freq", 440, "tone frequency in Hz")
	toneCmd.Flags().Float64Var(&argToneLevel, "level", 0.25, "tone amplitude, 0 to 1")
	toneCmd.Flags().Float64Var(&argToneSeconds, "seconds", 3, "how long to play")
}

func playTone(ctx context.Context, engine *application.Engine, busID string, deviceID int) error {
	ch, err := engine.Channel(toneID)
	if err != nil {
		return err
	}
	tone, ok := ch.Source().(*application.ToneSource)
	if !ok {
		return fmt.Errorf("channel %s: %w", toneID, domain.ErrWrongKind)
	}
	tone.SetTone(argToneFreq, argToneLevel)

	if err := engine.SetChannelRouting(toneID, busID, true); err != nil {
		return err
	}
	if err := engine.SetBusDevice(busID, deviceID); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(argToneSeconds*float64(time.Second)))
	defer cancel()
	err = engine.Run(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
