//go:build portaudio
// +build portaudio

// Package portaudio is the device backend for real sound cards.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"promixer/internal/application"
	"promixer/internal/domain"
)

type Backend struct {
	logger *slog.Logger

	mu      sync.Mutex
	devices []*pa.DeviceInfo
	closed  bool
}

// New initializes PortAudio. Close must be called to release it.
func New(logger *slog.Logger) (*Backend, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	logger.Info("portaudio initialized", "version", pa.VersionText())
	return &Backend{logger: logger}, nil
}

func (b *Backend) Devices() ([]domain.Device, error) {
	infos, err := b.refresh()
	if err != nil {
		return nil, err
	}

	var defIn, defOut *pa.DeviceInfo
	if d, err := pa.DefaultInputDevice(); err == nil {
		defIn = d
	}
	if d, err := pa.DefaultOutputDevice(); err == nil {
		defOut = d
	}

	devs := make([]domain.Device, 0, len(infos))
	for i, info := range infos {
		devs = append(devs, toDevice(i, info, info == defIn, info == defOut))
	}
	return devs, nil
}

func (b *Backend) DefaultOutput() (domain.Device, error) {
	infos, err := b.refresh()
	if err != nil {
		return domain.Device{}, err
	}
	def, err := pa.DefaultOutputDevice()
	if err != nil {
		return domain.Device{}, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}
	for i, info := range infos {
		if info == def {
			return toDevice(i, info, false, true), nil
		}
	}
	return domain.Device{}, domain.ErrDeviceUnavailable
}

func (b *Backend) refresh() ([]*pa.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: backend closed", domain.ErrDeviceUnavailable)
	}
	infos, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing portaudio devices: %w", err)
	}
	b.devices = infos
	return infos, nil
}

func (b *Backend) lookup(id int) (*pa.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.devices == nil {
		infos, err := pa.Devices()
		if err != nil {
			return nil, fmt.Errorf("listing portaudio devices: %w", err)
		}
		b.devices = infos
	}
	if id < 0 || id >= len(b.devices) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrDeviceUnavailable, id)
	}
	return b.devices[id], nil
}

func (b *Backend) OpenInput(cfg application.StreamConfig, h application.CaptureHandler) (application.Stream, error) {
	info, err := b.lookup(cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	if cfg.Channels > info.MaxInputChannels {
		return nil, fmt.Errorf("%w: %s has %d inputs", domain.ErrTooManyChannels, info.Name, info.MaxInputChannels)
	}

	params := pa.LowLatencyParameters(info, nil)
	params.Input.Channels = cfg.Channels
	params.Output.Channels = 0
	params.SampleRate = cfg.SampleRate
	params.FramesPerBuffer = cfg.FramesPerBuffer

	channels := cfg.Channels
	s, err := pa.OpenStream(params, func(in []float32) {
		h.Capture(in, channels)
	})
	if err != nil {
		return nil, fmt.Errorf("opening input on %s: %w", info.Name, mapError(err))
	}
	return &stream{s: s}, nil
}

func (b *Backend) OpenOutput(cfg application.StreamConfig, h application.RenderHandler) (application.Stream, error) {
	info, err := b.lookup(cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	if cfg.Channels > info.MaxOutputChannels {
		return nil, fmt.Errorf("%w: %s has %d outputs", domain.ErrTooManyChannels, info.Name, info.MaxOutputChannels)
	}

	params := pa.LowLatencyParameters(nil, info)
	params.Input.Channels = 0
	params.Output.Channels = cfg.Channels
	params.SampleRate = cfg.SampleRate
	params.FramesPerBuffer = cfg.FramesPerBuffer

	channels := cfg.Channels
	s, err := pa.OpenStream(params, func(out []float32) {
		h.Render(out, channels)
	})
	if err != nil {
		return nil, fmt.Errorf("opening output on %s: %w", info.Name, mapError(err))
	}
	if si := s.Info(); si != nil {
		b.logger.Debug("output stream opened",
			"device", info.Name,
			"sample_rate", si.SampleRate,
			"latency", latency(si.OutputLatency),
		)
	}
	return &stream{s: s}, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := pa.Terminate(); err != nil {
		return fmt.Errorf("terminating portaudio: %w", err)
	}
	b.logger.Info("portaudio terminated")
	return nil
}

type stream struct {
	s *pa.Stream
}

func (s *stream) Start() error { return s.s.Start() }
func (s *stream) Stop() error  { return s.s.Stop() }
func (s *stream) Close() error { return s.s.Close() }

func toDevice(id int, info *pa.DeviceInfo, defIn, defOut bool) domain.Device {
	d := domain.Device{
		ID:              id,
		Name:            info.Name,
		InputChannels:   info.MaxInputChannels,
		OutputChannels:  info.MaxOutputChannels,
		SampleRate:      info.DefaultSampleRate,
		IsDefaultInput:  defIn,
		IsDefaultOutput: defOut,
	}
	if info.HostApi != nil {
		d.HostAPI = info.HostApi.Name
	}
	return d
}

// mapError translates PortAudio codes into the engine's sentinel errors so
// open strategies can react to them.
func mapError(err error) error {
	var code pa.Error
	if !errors.As(err, &code) {
		return err
	}
	switch code {
	case pa.InvalidSampleRate:
		return fmt.Errorf("%w: %v", domain.ErrSampleRateMismatch, err)
	case pa.InvalidChannelCount:
		return fmt.Errorf("%w: %v", domain.ErrTooManyChannels, err)
	case pa.InvalidDevice, pa.DeviceUnavailable:
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	default:
		return err
	}
}

func latency(d time.Duration) string {
	return d.Round(time.Millisecond / 10).String()
}
