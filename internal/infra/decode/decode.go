// Package decode turns sound files into stereo clip buffers.
package decode

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"promixer/internal/domain"
)

type format func(f *os.File) ([]float32, int, float64, error)

var formats = map[string]format{
	".wav":  decodeWAV,
	".aif":  decodeAIFF,
	".aiff": decodeAIFF,
	".mp3":  decodeMP3,
	".ogg":  decodeOgg,
}

// Supported reports whether path has an extension Decode understands.
func Supported(path string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(path))]
	return ok
}

type Decoder struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Decode reads a whole file and returns it as a stereo block at its native
// sample rate. Mono is duplicated, channels past the second are dropped.
func (d *Decoder) Decode(path string) (domain.Block, float64, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := formats[ext]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	samples, channels, rate, err := fn(f)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding %s: %w", path, err)
	}
	if channels <= 0 || rate <= 0 {
		return nil, 0, fmt.Errorf("%w: %s reports %d channels at %v Hz", domain.ErrUnsupportedFormat, path, channels, rate)
	}

	block := domain.FromInterleaved(samples, channels)
	d.logger.Debug("clip decoded",
		"path", path,
		"channels", channels,
		"sample_rate", rate,
		"frames", block.Frames(),
	)
	return block, rate, nil
}

func decodeWAV(f *os.File) ([]float32, int, float64, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%w: not a wav file", domain.ErrUnsupportedFormat)
	}
	if dec.WavAudioFormat != 1 {
		return nil, 0, 0, fmt.Errorf("%w: wav format %d is not PCM", domain.ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	depth := int(dec.BitDepth)
	return intsToFloats(buf.Data, depth, depth == 8), int(dec.NumChans), float64(dec.SampleRate), nil
}

func decodeAIFF(f *os.File) ([]float32, int, float64, error) {
	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%w: not an aiff file", domain.ErrUnsupportedFormat)
	}
	dec.ReadInfo()
	format := dec.Format()
	if format == nil {
		return nil, 0, 0, fmt.Errorf("%w: aiff without a common chunk", domain.ErrUnsupportedFormat)
	}

	var data []int
	chunk := &goaudio.IntBuffer{Data: make([]int, 4096*format.NumChannels), Format: format}
	for {
		n, err := dec.PCMBuffer(chunk)
		data = append(data, chunk.Data[:n]...)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, 0, err
		}
		if n == 0 || err != nil {
			break
		}
	}
	return intsToFloats(data, int(dec.BitDepth), false), format.NumChannels, float64(format.SampleRate), nil
}

// decodeMP3 reads go-mp3's 16-bit little-endian stereo output.
func decodeMP3(f *os.File) ([]float32, int, float64, error) {
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, 0, 0, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, err
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		samples[i] = float32(v) / 32768
	}
	return samples, domain.Stereo, float64(dec.SampleRate()), nil
}

func decodeOgg(f *os.File) ([]float32, int, float64, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, 0, 0, err
	}
	channels := dec.Channels()

	var samples []float32
	chunk := make([]float32, 4096*channels)
	for {
		n, err := dec.Read(chunk)
		samples = append(samples, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
		if n == 0 {
			break
		}
	}
	return samples, channels, float64(dec.SampleRate()), nil
}

// intsToFloats scales PCM integers of the given bit depth to [-1, 1).
// Unsigned input is centered first.
func intsToFloats(data []int, depth int, unsigned bool) []float32 {
	if depth <= 0 {
		depth = 16
	}
	scale := float32(int64(1) << (depth - 1))
	out := make([]float32, len(data))
	for i, v := range data {
		if unsigned {
			v -= int(scale)
		}
		out[i] = float32(v) / scale
	}
	return out
}

// ScanDir lists the decodable files directly inside dir, sorted by name.
func ScanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading clip dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !Supported(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
