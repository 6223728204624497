// Package resample adapts github.com/tphakala/go-audio-resampler to stereo blocks.
package resample

import (
	"fmt"
	"math"
	"strings"

	resampler "github.com/tphakala/go-audio-resampler"

	"promixer/internal/application"
	"promixer/internal/domain"
)

func ParseQuality(s string) (resampler.QualityPreset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quick":
		return resampler.QualityQuick, nil
	case "low":
		return resampler.QualityLow, nil
	case "", "medium":
		return resampler.QualityMedium, nil
	case "high":
		return resampler.QualityHigh, nil
	case "very_high", "veryhigh":
		return resampler.QualityVeryHigh, nil
	default:
		return 0, fmt.Errorf("unknown resample quality %q", s)
	}
}

// TargetFrames is frames scaled by to/from using the reduced integer ratio of
// the two rates, rounded to the nearest frame.
func TargetFrames(frames int, from, to float64) int {
	f, t := int64(math.Round(from)), int64(math.Round(to))
	if f <= 0 || t <= 0 {
		return 0
	}
	g := gcd(f, t)
	up, down := t/g, f/g
	return int((int64(frames)*up + down/2) / down)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Buffer resamples a whole clip in one pass. The result has exactly
// TargetFrames frames.
func Buffer(in domain.Block, from, to float64, quality resampler.QualityPreset) (domain.Block, error) {
	if from == to {
		return in.Clone(), nil
	}
	if in.Frames() == 0 {
		return domain.Block{}, nil
	}
	left, right := in.Planar()
	lo, ro, err := resampler.ResampleStereo(left, right, from, to, quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %.0f Hz to %.0f Hz: %v", domain.ErrResampling, from, to, err)
	}
	return domain.FromPlanar(lo, ro).Fit(TargetFrames(in.Frames(), from, to)), nil
}

// Factory builds resamplers with fixed quality presets: Stream for per-block
// bus output and Clip for load-time conversion.
type Factory struct {
	Stream resampler.QualityPreset
	Clip   resampler.QualityPreset
}

func NewFactory(streamQuality, clipQuality string) (*Factory, error) {
	sq, err := ParseQuality(streamQuality)
	if err != nil {
		return nil, fmt.Errorf("stream quality: %w", err)
	}
	cq, err := ParseQuality(clipQuality)
	if err != nil {
		return nil, fmt.Errorf("clip quality: %w", err)
	}
	return &Factory{Stream: sq, Clip: cq}, nil
}

func (f *Factory) NewStream(from, to float64) (application.BlockResampler, error) {
	return NewStream(from, to, f.Stream)
}

func (f *Factory) Buffer(in domain.Block, from, to float64) (domain.Block, error) {
	return Buffer(in, from, to, f.Clip)
}
