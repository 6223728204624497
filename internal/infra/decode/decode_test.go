package decode_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promixer/internal/application"
	"promixer/internal/domain"
	"promixer/internal/infra/decode"
)

var _ application.ClipDecoder = (*decode.Decoder)(nil)

func newDecoder() *decode.Decoder {
	return decode.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeWAV(t *testing.T, path string, rate, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestDecode_StereoWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeWAV(t, path, 44100, 2, []int{16384, -16384, 8192, 0})

	block, rate, err := newDecoder().Decode(path)
	require.NoError(t, err)

	assert.Equal(t, 44100.0, rate)
	assert.Equal(t, 2, block.Frames())
	assert.InDeltaSlice(t, []float64{0.5, -0.5, 0.25, 0}, []float64(block), 1e-9)
}

func TestDecode_MonoWAVIsDuplicated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.WAV")
	writeWAV(t, path, 48000, 1, []int{16384, -8192, 0})

	block, rate, err := newDecoder().Decode(path)
	require.NoError(t, err)

	assert.Equal(t, 48000.0, rate)
	assert.InDeltaSlice(t, []float64{0.5, 0.5, -0.25, -0.25, 0, 0}, []float64(block), 1e-9)
}

func TestDecode_AIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "horn.aiff")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := aiff.NewEncoder(f, 22050, 16, 2)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           []int{16384, 16384, -16384, -16384},
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 22050},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	block, rate, err := newDecoder().Decode(path)
	require.NoError(t, err)

	assert.Equal(t, 22050.0, rate)
	assert.InDeltaSlice(t, []float64{0.5, 0.5, -0.5, -0.5}, []float64(block), 1e-9)
}

func TestDecode_Errors(t *testing.T) {
	dir := t.TempDir()
	d := newDecoder()

	_, _, err := d.Decode(filepath.Join(dir, "song.flac"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	_, _, err = d.Decode(filepath.Join(dir, "missing.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	garbage := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not riff"), 0o644))
	_, _, err = d.Decode(garbage)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	for _, name := range []string{"garbage.mp3", "garbage.ogg"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte{0, 1, 2, 3}, 0o644))
		_, _, err = d.Decode(p)
		assert.Error(t, err, name)
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mp3", "a.wav", "notes.txt", "c.OGG", "d.aif"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.wav"), 0o755))

	paths, err := decode.ScanDir(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.wav"),
		filepath.Join(dir, "b.mp3"),
		filepath.Join(dir, "c.OGG"),
		filepath.Join(dir, "d.aif"),
	}, paths)

	_, err = decode.ScanDir(filepath.Join(dir, "nope"))
	assert.Error(t, err)
}
