// Package wavfile saves recordings as PCM WAV files.
package wavfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	"github.com/go-audio/wav"

	"promixer/internal/domain"
)

const DefaultBitDepth = 16

type Writer struct {
	bitDepth int
	logger   *slog.Logger
}

// New returns a writer for the given bit depth. Anything but 16, 24 or 32
// falls back to 16.
func New(bitDepth int, logger *slog.Logger) *Writer {
	switch bitDepth {
	case 16, 24, 32:
	default:
		bitDepth = DefaultBitDepth
	}
	return &Writer{bitDepth: bitDepth, logger: logger}
}

// WriteRecording encodes a stereo block to path. The file appears only once
// it is complete.
func (w *Writer) WriteRecording(path string, data domain.Block, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("writing %s: sample rate %v", path, rate)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating recording dir: %w", err)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	if err := w.encode(f, data, int(rate)); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming recording: %w", err)
	}

	w.logger.Debug("recording written", "path", path, "frames", data.Frames(), "bit_depth", w.bitDepth)
	return nil
}

func (w *Writer) encode(f *os.File, data domain.Block, rate int) error {
	format := &goaudio.Format{NumChannels: domain.Stereo, SampleRate: rate}
	samples := make([]float32, len(data))
	for i, v := range data {
		samples[i] = float32(max(-1, min(1, v)))
	}

	fBuf := &goaudio.Float32Buffer{Data: samples, Format: format}
	if err := transforms.PCMScaleF32(fBuf, w.bitDepth); err != nil {
		return fmt.Errorf("scaling samples: %w", err)
	}
	iBuf := fBuf.AsIntBuffer()
	iBuf.SourceBitDepth = w.bitDepth

	enc := wav.NewEncoder(f, rate, w.bitDepth, domain.Stereo, 1)
	if err := enc.Write(iBuf); err != nil {
		return err
	}
	return enc.Close()
}
