// Package virtual is a software device backend. Output streams are clocked
// by tickers, or stepped by hand in manual mode, and loopback devices feed
// what is played on them back into their own inputs like a virtual cable.
package virtual

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"promixer/internal/application"
	"promixer/internal/domain"
)

// Device describes a software device.
type Device struct {
	domain.Device
	// Rates restricts the sample rates a stream may open at. Empty accepts any.
	Rates []float64
	// Loopback devices deliver rendered output to their open input streams.
	Loopback bool
}

const (
	SpeakersID = 0
	CableID    = 1
	MicID      = 2
	DAC44kID   = 3
)

func DefaultDevices() []Device {
	return []Device{
		{Device: domain.Device{
			ID: SpeakersID, Name: "Virtual Speakers", HostAPI: "virtual",
			OutputChannels: 2, SampleRate: 48000, IsDefaultOutput: true,
		}},
		{Device: domain.Device{
			ID: CableID, Name: "Virtual Cable", HostAPI: "virtual",
			InputChannels: 2, OutputChannels: 2, SampleRate: 48000,
		}, Loopback: true},
		{Device: domain.Device{
			ID: MicID, Name: "Virtual Microphone", HostAPI: "virtual",
			InputChannels: 1, SampleRate: 48000, IsDefaultInput: true,
		}},
		{Device: domain.Device{
			ID: DAC44kID, Name: "Virtual DAC 44.1k", HostAPI: "virtual",
			OutputChannels: 2, SampleRate: 44100,
		}, Rates: []float64{44100}},
	}
}

type Option func(*Backend)

// WithDevices replaces the default device list.
func WithDevices(devs ...Device) Option {
	return func(b *Backend) { b.devices = slices.Clone(devs) }
}

// WithManualClock disables tickers. Streams only run when Step is called.
func WithManualClock() Option {
	return func(b *Backend) { b.manual = true }
}

type Backend struct {
	logger *slog.Logger
	manual bool

	mu      sync.Mutex
	devices []Device
	streams []*stream
	closed  bool
}

func New(logger *slog.Logger, opts ...Option) *Backend {
	b := &Backend{logger: logger, devices: DefaultDevices()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Devices() ([]domain.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	devs := make([]domain.Device, len(b.devices))
	for i, d := range b.devices {
		devs[i] = d.Device
	}
	return devs, nil
}

func (b *Backend) DefaultOutput() (domain.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.devices {
		if d.IsDefaultOutput {
			return d.Device, nil
		}
	}
	return domain.Device{}, fmt.Errorf("%w: no default output", domain.ErrDeviceUnavailable)
}

// Add plugs in a device, replacing one with the same id.
func (b *Backend) Add(d Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = slices.DeleteFunc(b.devices, func(x Device) bool { return x.ID == d.ID })
	b.devices = append(b.devices, d)
}

// Remove unplugs a device. Its open streams go silent.
func (b *Backend) Remove(id int) {
	b.mu.Lock()
	b.devices = slices.DeleteFunc(b.devices, func(x Device) bool { return x.ID == id })
	var gone []*stream
	for _, s := range b.streams {
		if s.dev.ID == id {
			gone = append(gone, s)
		}
	}
	b.mu.Unlock()

	for _, s := range gone {
		s.detach()
	}
	b.logger.Info("virtual device removed", "device", id)
}

func (b *Backend) lookup(cfg application.StreamConfig, input bool) (Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Device{}, fmt.Errorf("%w: backend closed", domain.ErrDeviceUnavailable)
	}
	idx := slices.IndexFunc(b.devices, func(d Device) bool { return d.ID == cfg.DeviceID })
	if idx < 0 {
		return Device{}, fmt.Errorf("%w: id %d", domain.ErrDeviceUnavailable, cfg.DeviceID)
	}
	d := b.devices[idx]

	limit := d.OutputChannels
	if input {
		limit = d.InputChannels
	}
	if cfg.Channels < 1 || cfg.Channels > limit {
		return Device{}, fmt.Errorf("%w: %s supports %d channels, asked for %d",
			domain.ErrTooManyChannels, d.Name, limit, cfg.Channels)
	}
	if cfg.SampleRate <= 0 || (len(d.Rates) > 0 && !slices.Contains(d.Rates, cfg.SampleRate)) {
		return Device{}, fmt.Errorf("%w: %s does not run at %.0f Hz", domain.ErrSampleRateMismatch, d.Name, cfg.SampleRate)
	}
	if cfg.FramesPerBuffer <= 0 {
		return Device{}, fmt.Errorf("%w: %d frames per buffer", domain.ErrBufferShape, cfg.FramesPerBuffer)
	}
	return d, nil
}

func (b *Backend) OpenInput(cfg application.StreamConfig, h application.CaptureHandler) (application.Stream, error) {
	d, err := b.lookup(cfg, true)
	if err != nil {
		return nil, err
	}
	return b.add(&stream{b: b, dev: d, cfg: cfg, input: true, capture: h}), nil
}

func (b *Backend) OpenOutput(cfg application.StreamConfig, h application.RenderHandler) (application.Stream, error) {
	d, err := b.lookup(cfg, false)
	if err != nil {
		return nil, err
	}
	return b.add(&stream{b: b, dev: d, cfg: cfg, render: h}), nil
}

func (b *Backend) add(s *stream) *stream {
	s.buf = make([]float32, s.cfg.FramesPerBuffer*s.cfg.Channels)
	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.mu.Unlock()
	b.logger.Debug("virtual stream opened",
		"device", s.dev.Name,
		"input", s.input,
		"channels", s.cfg.Channels,
		"sample_rate", s.cfg.SampleRate,
	)
	return s
}

func (b *Backend) drop(s *stream) {
	b.mu.Lock()
	b.streams = slices.DeleteFunc(b.streams, func(x *stream) bool { return x == s })
	b.mu.Unlock()
}

// Step runs one callback on every started stream that owns a clock: inputs
// of non-loopback devices first, then outputs in the order they were opened.
func (b *Backend) Step() {
	b.mu.Lock()
	streams := slices.Clone(b.streams)
	b.mu.Unlock()

	for _, s := range streams {
		if s.input && !s.dev.Loopback {
			s.tick()
		}
	}
	for _, s := range streams {
		if !s.input {
			s.tick()
		}
	}
}

// Last returns a copy of the most recent buffer rendered on deviceID and how
// many buffers its stream has rendered.
func (b *Backend) Last(deviceID int) ([]float32, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.streams) - 1; i >= 0; i-- {
		s := b.streams[i]
		if s.input || s.dev.ID != deviceID {
			continue
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return slices.Clone(s.last), s.blocks
	}
	return nil, 0
}

// loopback hands a rendered buffer to every running input on the same device.
func (b *Backend) loopback(from *stream, out []float32) {
	b.mu.Lock()
	var targets []*stream
	for _, s := range b.streams {
		if s.input && s.dev.ID == from.dev.ID {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	block := domain.FromInterleaved(out, from.cfg.Channels)
	for _, s := range targets {
		s.deliver(block)
	}
}

func (b *Backend) Close() error {
	b.mu.Lock()
	streams := slices.Clone(b.streams)
	b.closed = true
	b.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
	return nil
}

type stream struct {
	b       *Backend
	dev     Device
	cfg     application.StreamConfig
	input   bool
	render  application.RenderHandler
	capture application.CaptureHandler

	mu       sync.Mutex
	running  bool
	closed   bool
	detached bool
	stop     chan struct{}
	done     chan struct{}
	buf      []float32
	last     []float32
	blocks   int
}

func (s *stream) period() time.Duration {
	return time.Duration(float64(time.Second) * float64(s.cfg.FramesPerBuffer) / s.cfg.SampleRate)
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: stream closed", domain.ErrDeviceUnavailable)
	}
	if s.running {
		return nil
	}
	s.running = true
	if s.b.manual || (s.input && s.dev.Loopback) {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	return nil
}

func (s *stream) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.period())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Stop waits for an in-flight callback to return.
func (s *stream) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.running = false
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (s *stream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.b.drop(s)
	return nil
}

func (s *stream) detach() {
	s.mu.Lock()
	s.detached = true
	s.mu.Unlock()
}

func (s *stream) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.detached
}

// tick runs one callback. Handlers are called without the stream lock held.
func (s *stream) tick() {
	if !s.active() {
		return
	}
	clear(s.buf)
	if s.input {
		s.capture.Capture(s.buf, s.cfg.Channels)
		return
	}

	s.render.Render(s.buf, s.cfg.Channels)
	s.mu.Lock()
	s.last = append(s.last[:0], s.buf...)
	s.blocks++
	s.mu.Unlock()

	if s.dev.Loopback {
		s.b.loopback(s, s.buf)
	}
}

func (s *stream) deliver(block domain.Block) {
	if !s.active() {
		return
	}
	in := make([]float32, s.cfg.FramesPerBuffer*s.cfg.Channels)
	block.Fit(s.cfg.FramesPerBuffer).WriteInterleaved(in, s.cfg.Channels)
	s.capture.Capture(in, s.cfg.Channels)
}
