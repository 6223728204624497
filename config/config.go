package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"promixer/internal/domain"
)

type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Audio     AudioConfig     `yaml:"audio"`
	Channels  []ChannelConfig `yaml:"channels"`
	Buses     []string        `yaml:"buses"`
	Bindings  BindingsConfig  `yaml:"bindings"`
	Clips     []ClipConfig    `yaml:"clips"`
	ClipDir   string          `yaml:"clip_dir"`
	StateFile string          `yaml:"state_file"`
	Control   ControlConfig   `yaml:"control"`
	Pushover  PushoverConfig  `yaml:"pushover"`
	Log       LogConfig       `yaml:"log"`
}

type EngineConfig struct {
	SampleRate              float64  `yaml:"sample_rate"`
	BlockSize               int      `yaml:"block_size"`
	QueueDepth              int      `yaml:"queue_depth"`
	MainBus                 string   `yaml:"main_bus"`
	DefaultInputFaderDB     *float64 `yaml:"default_input_fader_db"`
	RecordingBus            string   `yaml:"recording_bus"`
	RecordingDir            string   `yaml:"recording_dir"`
	RecordingBitDepth       int      `yaml:"recording_bit_depth"`
	FallbackToDefaultOutput bool     `yaml:"fallback_to_default_output"`
	ResampleQuality         string   `yaml:"resample_quality"`
	ClipResampleQuality     string   `yaml:"clip_resample_quality"`
	UnderrunWarnAfter       int      `yaml:"underrun_warn_after"`
	DeviceCheckInterval     string   `yaml:"device_check_interval"`
}

type AudioConfig struct {
	Backend string `yaml:"backend"`
}

type ChannelConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	Feed string `yaml:"feed"`
}

// BindingsConfig maps channel and bus ids to device ids.
type BindingsConfig struct {
	Inputs  map[string]int `yaml:"inputs"`
	Outputs map[string]int `yaml:"outputs"`
}

type ClipConfig struct {
	Name    string   `yaml:"name"`
	Path    string   `yaml:"path"`
	Volume  *float64 `yaml:"volume"`
	Looping bool     `yaml:"looping"`
}

type ControlConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default is the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	if c.Engine.SampleRate == 0 {
		c.Engine.SampleRate = 48000
	}
	if c.Engine.BlockSize == 0 {
		c.Engine.BlockSize = 512
	}
	if c.Engine.QueueDepth == 0 {
		c.Engine.QueueDepth = 10
	}
	if c.Engine.DefaultInputFaderDB == nil {
		db := 12.0
		c.Engine.DefaultInputFaderDB = &db
	}
	if c.Engine.RecordingDir == "" {
		c.Engine.RecordingDir = "./recordings"
	}
	if c.Engine.RecordingBitDepth == 0 {
		c.Engine.RecordingBitDepth = 16
	}
	if c.Engine.ResampleQuality == "" {
		c.Engine.ResampleQuality = "low"
	}
	if c.Engine.ClipResampleQuality == "" {
		c.Engine.ClipResampleQuality = "high"
	}
	if c.Engine.UnderrunWarnAfter == 0 {
		c.Engine.UnderrunWarnAfter = 50
	}
	if c.Engine.DeviceCheckInterval == "" {
		c.Engine.DeviceCheckInterval = "2s"
	}
	if c.Audio.Backend == "" {
		c.Audio.Backend = "portaudio"
	}
	if len(c.Channels) == 0 {
		for _, spec := range domain.DefaultChannels() {
			c.Channels = append(c.Channels, ChannelConfig{ID: spec.ID, Name: spec.Name, Kind: string(spec.Kind), Feed: spec.Feed})
		}
	}
	if len(c.Buses) == 0 {
		c.Buses = domain.DefaultBuses()
	}
	if c.Engine.MainBus == "" {
		c.Engine.MainBus = c.Buses[0]
	}
	if c.Engine.RecordingBus == "" {
		c.Engine.RecordingBus = c.Engine.MainBus
	}
	if c.Control.Addr == "" {
		c.Control.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("engine.sample_rate must be positive, got %v", c.Engine.SampleRate))
	}
	if c.Engine.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("engine.block_size must be positive, got %d", c.Engine.BlockSize))
	}
	if _, err := time.ParseDuration(c.Engine.DeviceCheckInterval); err != nil {
		errs = append(errs, fmt.Errorf("engine.device_check_interval: %w", err))
	}
	if !slices.Contains([]string{"portaudio", "virtual"}, c.Audio.Backend) {
		errs = append(errs, fmt.Errorf("audio.backend must be portaudio or virtual, got %q", c.Audio.Backend))
	}

	if !slices.Contains(c.Buses, c.Engine.MainBus) {
		errs = append(errs, fmt.Errorf("engine.main_bus %q: %w", c.Engine.MainBus, domain.ErrUnknownBus))
	}
	if !slices.Contains(c.Buses, c.Engine.RecordingBus) {
		errs = append(errs, fmt.Errorf("engine.recording_bus %q: %w", c.Engine.RecordingBus, domain.ErrUnknownBus))
	}

	channels := make(map[string]domain.ChannelKind, len(c.Channels))
	for _, ch := range c.Channels {
		kind, err := domain.ParseChannelKind(ch.Kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.ID, err))
		}
		if kind == domain.KindBusFeed && !slices.Contains(c.Buses, ch.Feed) {
			errs = append(errs, fmt.Errorf("channel %s feeds from %q: %w", ch.ID, ch.Feed, domain.ErrUnknownBus))
		}
		channels[ch.ID] = kind
	}

	for id := range c.Bindings.Inputs {
		kind, ok := channels[id]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("bindings.inputs %s: %w", id, domain.ErrUnknownChannel))
		case kind != domain.KindHardware:
			errs = append(errs, fmt.Errorf("bindings.inputs %s: %w", id, domain.ErrWrongKind))
		}
	}
	for id := range c.Bindings.Outputs {
		if !slices.Contains(c.Buses, id) {
			errs = append(errs, fmt.Errorf("bindings.outputs %s: %w", id, domain.ErrUnknownBus))
		}
	}

	for i, clip := range c.Clips {
		if clip.Path == "" {
			errs = append(errs, fmt.Errorf("clips[%d]: path is required", i))
		}
	}

	return errors.Join(errs...)
}

// Specs converts the channel list into registry specs. Call after Validate.
func (c *Config) Specs() []domain.ChannelSpec {
	specs := make([]domain.ChannelSpec, 0, len(c.Channels))
	for _, ch := range c.Channels {
		kind, _ := domain.ParseChannelKind(ch.Kind)
		specs = append(specs, domain.ChannelSpec{ID: ch.ID, Name: ch.Name, Kind: kind, Feed: ch.Feed})
	}
	return specs
}

// CheckInterval is the parsed device_check_interval.
func (c *Config) CheckInterval() time.Duration {
	d, err := time.ParseDuration(c.Engine.DeviceCheckInterval)
	if err != nil {
		return 0
	}
	return d
}
