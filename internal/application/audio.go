package application

import "promixer/internal/domain"

// StreamConfig describes one device stream. Samples are interleaved float32.
type StreamConfig struct {
	DeviceID        int
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
}

type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// CaptureHandler receives every input buffer on the device thread.
// It must not block.
type CaptureHandler interface {
	Capture(in []float32, channels int)
}

// RenderHandler fills every output buffer on the device thread.
// It must not block.
type RenderHandler interface {
	Render(out []float32, channels int)
}

// DeviceBackend opens streams on physical or virtual devices. Opening an
// unknown device fails with domain.ErrDeviceUnavailable and a rejected rate
// with domain.ErrSampleRateMismatch.
type DeviceBackend interface {
	Devices() ([]domain.Device, error)
	DefaultOutput() (domain.Device, error)
	OpenInput(cfg StreamConfig, h CaptureHandler) (Stream, error)
	OpenOutput(cfg StreamConfig, h RenderHandler) (Stream, error)
	Close() error
}

// BlockResampler converts consecutive blocks for one output device and
// always returns exactly frames frames.
type BlockResampler interface {
	Resample(in domain.Block, frames int) (domain.Block, error)
}

type Resampler interface {
	NewStream(fromRate, toRate float64) (BlockResampler, error)
	Buffer(in domain.Block, fromRate, toRate float64) (domain.Block, error)
}

// ClipDecoder loads a sound file as stereo samples at its native rate.
type ClipDecoder interface {
	Decode(path string) (domain.Block, float64, error)
}

type RecordingWriter interface {
	WriteRecording(path string, data domain.Block, sampleRate float64) error
}
