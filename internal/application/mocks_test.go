package application_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"promixer/internal/application"
	"promixer/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	devMic       = 1
	devSpeakers  = 2
	devPhones    = 3
	devOnly48k   = 4
	devOnly44k   = 5
	devNothing   = 6
	devMonoMic   = 7
	devVanishing = 8
)

func testDevices() []domain.Device {
	return []domain.Device{
		{ID: devMic, Name: "USB Microphone With A Long Name", InputChannels: 2, SampleRate: 48000, IsDefaultInput: true},
		{ID: devSpeakers, Name: "Speakers", OutputChannels: 2, SampleRate: 48000, IsDefaultOutput: true},
		{ID: devPhones, Name: "headphones", OutputChannels: 2, SampleRate: 48000},
		{ID: devOnly48k, Name: "Old DAC", OutputChannels: 2, SampleRate: 48000},
		{ID: devOnly44k, Name: "Line 44k", OutputChannels: 2, SampleRate: 44100},
		{ID: devNothing, Name: "Dummy"},
		{ID: devMonoMic, Name: "Mono Mic", InputChannels: 1, SampleRate: 48000},
		{ID: devVanishing, Name: "Bluetooth", OutputChannels: 2, SampleRate: 48000},
	}
}

type mockStream struct {
	cfg      application.StreamConfig
	render   application.RenderHandler
	capture  application.CaptureHandler
	started  bool
	closed   bool
	closeErr error
}

func (s *mockStream) Start() error { s.started = true; return nil }
func (s *mockStream) Stop() error  { s.started = false; return s.closeErr }

func (s *mockStream) Close() error {
	s.closed = true
	return s.closeErr
}

// pull runs one output callback and returns what the device would play.
func (s *mockStream) pull() []float32 {
	out := make([]float32, s.cfg.FramesPerBuffer*s.cfg.Channels)
	s.render.Render(out, s.cfg.Channels)
	return out
}

// push runs one input callback with the given interleaved samples.
func (s *mockStream) push(samples ...float32) {
	s.capture.Capture(samples, s.cfg.Channels)
}

type mockBackend struct {
	mu       sync.Mutex
	devices  []domain.Device
	rates    map[int][]float64
	outputs  []*mockStream
	inputs   []*mockStream
	closeErr error
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		devices: testDevices(),
		rates: map[int][]float64{
			devOnly48k: {48000},
			devOnly44k: {44100},
		},
	}
}

func (b *mockBackend) Devices() ([]domain.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.devices), nil
}

func (b *mockBackend) DefaultOutput() (domain.Device, error) {
	devs, _ := b.Devices()
	for _, d := range devs {
		if d.IsDefaultOutput {
			return d, nil
		}
	}
	return domain.Device{}, domain.ErrDeviceUnavailable
}

func (b *mockBackend) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = slices.DeleteFunc(b.devices, func(d domain.Device) bool { return d.ID == id })
}

func (b *mockBackend) check(cfg application.StreamConfig, input bool) error {
	devs, _ := b.Devices()
	idx := slices.IndexFunc(devs, func(d domain.Device) bool { return d.ID == cfg.DeviceID })
	if idx < 0 {
		return fmt.Errorf("%w: %d", domain.ErrDeviceUnavailable, cfg.DeviceID)
	}
	d := devs[idx]
	limit := d.OutputChannels
	if input {
		limit = d.InputChannels
	}
	if cfg.Channels < 1 || cfg.Channels > limit {
		return domain.ErrTooManyChannels
	}
	if rates, ok := b.rates[d.ID]; ok && !slices.Contains(rates, cfg.SampleRate) {
		return domain.ErrSampleRateMismatch
	}
	return nil
}

func (b *mockBackend) OpenInput(cfg application.StreamConfig, h application.CaptureHandler) (application.Stream, error) {
	if err := b.check(cfg, true); err != nil {
		return nil, err
	}
	s := &mockStream{cfg: cfg, capture: h, closeErr: b.closeErr}
	b.mu.Lock()
	b.inputs = append(b.inputs, s)
	b.mu.Unlock()
	return s, nil
}

func (b *mockBackend) OpenOutput(cfg application.StreamConfig, h application.RenderHandler) (application.Stream, error) {
	if err := b.check(cfg, false); err != nil {
		return nil, err
	}
	s := &mockStream{cfg: cfg, render: h, closeErr: b.closeErr}
	b.mu.Lock()
	b.outputs = append(b.outputs, s)
	b.mu.Unlock()
	return s, nil
}

func (b *mockBackend) Close() error { return nil }

// lastOutput returns the most recently opened stream on deviceID.
func (b *mockBackend) lastOutput(t *testing.T, deviceID int) *mockStream {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.outputs) - 1; i >= 0; i-- {
		if b.outputs[i].cfg.DeviceID == deviceID {
			return b.outputs[i]
		}
	}
	require.FailNow(t, "no output stream", "device %d", deviceID)
	return nil
}

func (b *mockBackend) lastInput(t *testing.T, deviceID int) *mockStream {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.inputs) - 1; i >= 0; i-- {
		if b.inputs[i].cfg.DeviceID == deviceID {
			return b.inputs[i]
		}
	}
	require.FailNow(t, "no input stream", "device %d", deviceID)
	return nil
}

func (b *mockBackend) outputCount(deviceID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.outputs {
		if s.cfg.DeviceID == deviceID {
			n++
		}
	}
	return n
}

// fitResampler stretches blocks by repeating or skipping frames.
type fitResampler struct {
	fail bool
}

type fitStream struct {
	fail bool
}

func (r *fitResampler) NewStream(_, _ float64) (application.BlockResampler, error) {
	return &fitStream{fail: r.fail}, nil
}

func (r *fitResampler) Buffer(in domain.Block, from, to float64) (domain.Block, error) {
	if r.fail {
		return nil, domain.ErrResampling
	}
	frames := int(float64(in.Frames()) * to / from)
	return stretch(in, frames), nil
}

func (s *fitStream) Resample(in domain.Block, frames int) (domain.Block, error) {
	if s.fail {
		return nil, errors.Join(domain.ErrResampling, errors.New("filter exploded"))
	}
	return stretch(in, frames), nil
}

func stretch(in domain.Block, frames int) domain.Block {
	out := domain.NewBlock(frames)
	n := in.Frames()
	if n == 0 {
		return out
	}
	for i := range frames {
		j := i * n / frames
		out[i*2], out[i*2+1] = in[j*2], in[j*2+1]
	}
	return out
}

type constProducer float64

func (c constProducer) Produce(frames int, _ string) domain.Block {
	b := domain.NewBlock(frames)
	for i := range b {
		b[i] = float64(c)
	}
	return b
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

// blockingNotifier holds every delivery until release is closed.
type blockingNotifier struct {
	release  chan struct{}
	mu       sync.Mutex
	messages []string
}

func (n *blockingNotifier) Notify(_ context.Context, message string) error {
	<-n.release
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *blockingNotifier) got() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.messages)
}

type memoryWriter struct {
	path string
	data domain.Block
	rate float64
}

func (w *memoryWriter) WriteRecording(path string, data domain.Block, rate float64) error {
	w.path, w.data, w.rate = path, data, rate
	return nil
}

type stubDecoder struct {
	clips map[string]domain.Block
	rate  float64
}

func (d *stubDecoder) Decode(path string) (domain.Block, float64, error) {
	b, ok := d.clips[path]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, path)
	}
	return b.Clone(), d.rate, nil
}

func newTestEngine(t *testing.T, cfg application.EngineConfig, backend application.DeviceBackend, opts ...application.Option) *application.Engine {
	t.Helper()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 4
	}
	e, err := application.NewEngine(cfg, backend, discardLogger(), opts...)
	require.NoError(t, err)
	return e
}
