package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promixer/config"
	"promixer/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "audio:\n  backend: virtual\n"))
	require.NoError(t, err)

	assert.Equal(t, 48000.0, cfg.Engine.SampleRate)
	assert.Equal(t, 512, cfg.Engine.BlockSize)
	assert.Equal(t, 10, cfg.Engine.QueueDepth)
	assert.Equal(t, 12.0, *cfg.Engine.DefaultInputFaderDB)
	assert.Equal(t, "A1", cfg.Engine.MainBus)
	assert.Equal(t, "A1", cfg.Engine.RecordingBus)
	assert.Equal(t, 2*time.Second, cfg.CheckInterval())
	assert.Equal(t, domain.DefaultBuses(), cfg.Buses)
	assert.Equal(t, domain.DefaultChannels(), cfg.Specs())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.Control.Addr)
}

func TestLoad_Full(t *testing.T) {
	t.Setenv("PROMIXER_TOKEN", "s3cret")
	cfg, err := config.Load(writeConfig(t, `
engine:
  sample_rate: 44100
  block_size: 256
  main_bus: B1
  default_input_fader_db: 0
  fallback_to_default_output: true
  resample_quality: medium
audio:
  backend: portaudio
channels:
  - {id: MIC, name: Mic, kind: hardware}
  - {id: CABLE, kind: virtual}
  - {id: MON, kind: busfeed, feed: B1}
buses: [A1, B1]
bindings:
  inputs: {MIC: 3}
  outputs: {A1: 5}
clips:
  - {name: airhorn, path: ./clips/airhorn.wav, volume: 0.8, looping: true}
control:
  enabled: true
  auth_token: ${PROMIXER_TOKEN}
log: {level: debug, format: json}
`))
	require.NoError(t, err)

	assert.Equal(t, 44100.0, cfg.Engine.SampleRate)
	assert.Equal(t, 0.0, *cfg.Engine.DefaultInputFaderDB)
	assert.Equal(t, "B1", cfg.Engine.RecordingBus)
	assert.True(t, cfg.Engine.FallbackToDefaultOutput)
	assert.Equal(t, "s3cret", cfg.Control.AuthToken)
	assert.Equal(t, map[string]int{"MIC": 3}, cfg.Bindings.Inputs)
	assert.Equal(t, 0.8, *cfg.Clips[0].Volume)
	assert.Equal(t, []domain.ChannelSpec{
		{ID: "MIC", Name: "Mic", Kind: domain.KindHardware},
		{ID: "CABLE", Kind: domain.KindHardware},
		{ID: "MON", Kind: domain.KindBusFeed, Feed: "B1"},
	}, cfg.Specs())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"negative rate", "engine: {sample_rate: -1}", nil},
		{"unknown backend", "audio: {backend: alsa}", nil},
		{"bad interval", "engine: {device_check_interval: soon}", nil},
		{"unknown main bus", "engine: {main_bus: Z9}", domain.ErrUnknownBus},
		{"unknown kind", "channels: [{id: X, kind: theremin}]", nil},
		{"feed from nowhere", "channels: [{id: X, kind: busfeed, feed: Q}]", domain.ErrUnknownBus},
		{"input on clip channel", "bindings: {inputs: {SOUNDBOARD: 1}}", domain.ErrWrongKind},
		{"input on unknown channel", "bindings: {inputs: {GHOST: 1}}", domain.ErrUnknownChannel},
		{"output on unknown bus", "bindings: {outputs: {Q9: 1}}", domain.ErrUnknownBus},
		{"clip without path", "clips: [{name: x}]", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = config.Load(writeConfig(t, "engine: [not, a, map]"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "portaudio", cfg.Audio.Backend)
	assert.NoError(t, cfg.Validate())
}
