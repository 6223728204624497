package resample_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	resampler "github.com/tphakala/go-audio-resampler"

	"promixer/internal/domain"
	"promixer/internal/infra/resample"
)

func tone(frames int, rate float64) domain.Block {
	b := domain.NewBlock(frames)
	for i := range frames {
		v := 0.5 * math.Sin(2*math.Pi*440*float64(i)/rate)
		b[i*2], b[i*2+1] = v, v
	}
	return b
}

func TestTargetFrames(t *testing.T) {
	assert.Equal(t, 96000, resample.TargetFrames(88200, 44100, 48000))
	assert.Equal(t, 441, resample.TargetFrames(480, 48000, 44100))
	assert.Equal(t, 512, resample.TargetFrames(512, 48000, 48000))
	assert.Equal(t, 0, resample.TargetFrames(512, 0, 48000))
}

func TestBuffer_PreservesDuration(t *testing.T) {
	in := tone(88200, 44100)

	out, err := resample.Buffer(in, 44100, 48000, resampler.QualityHigh)
	require.NoError(t, err)

	seconds := float64(out.Frames()) / 48000
	assert.InDelta(t, 2.0, seconds, 1.0/48000)
}

func TestBuffer_SameRateCopies(t *testing.T) {
	in := tone(100, 48000)
	out, err := resample.Buffer(in, 48000, 48000, resampler.QualityLow)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out[0] = 42
	assert.NotEqual(t, 42.0, in[0])
}

func TestStream_ReturnsRequestedFrames(t *testing.T) {
	s, err := resample.NewStream(48000, 44100, resampler.QualityLow)
	require.NoError(t, err)

	for range 20 {
		out, err := s.Resample(tone(480, 48000), 441)
		require.NoError(t, err)
		assert.Equal(t, 441, out.Frames())
	}
}

func TestParseQuality(t *testing.T) {
	q, err := resample.ParseQuality("very_high")
	require.NoError(t, err)
	assert.Equal(t, resampler.QualityVeryHigh, q)

	q, err = resample.ParseQuality("")
	require.NoError(t, err)
	assert.Equal(t, resampler.QualityMedium, q)

	_, err = resample.ParseQuality("ultra")
	assert.Error(t, err)
}
