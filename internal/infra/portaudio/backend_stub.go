//go:build !portaudio
// +build !portaudio

package portaudio

import (
	"fmt"
	"log/slog"

	"promixer/internal/application"
	"promixer/internal/domain"
)

// ErrNotBuilt is returned when the binary was built without PortAudio.
var ErrNotBuilt = fmt.Errorf("%w: portaudio backend not available: rebuild with -tags portaudio", domain.ErrDeviceUnavailable)

// Backend stub when portaudio is not available
type Backend struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) (*Backend, error) {
	return nil, ErrNotBuilt
}

func (b *Backend) Devices() ([]domain.Device, error) { return nil, ErrNotBuilt }

func (b *Backend) DefaultOutput() (domain.Device, error) { return domain.Device{}, ErrNotBuilt }

func (b *Backend) OpenInput(application.StreamConfig, application.CaptureHandler) (application.Stream, error) {
	return nil, ErrNotBuilt
}

func (b *Backend) OpenOutput(application.StreamConfig, application.RenderHandler) (application.Stream, error) {
	return nil, ErrNotBuilt
}

func (b *Backend) Close() error { return nil }
