package resample

import (
	"fmt"

	resampler "github.com/tphakala/go-audio-resampler"

	"promixer/internal/domain"
)

// Stream converts consecutive blocks for one output device. Output is queued
// so every call can return exactly the number of frames the device asked for;
// while the filter fills up the gap is padded with silence.
type Stream struct {
	r       resampler.Resampler
	from    float64
	to      float64
	pending [domain.Stereo][]float64
}

func NewStream(from, to float64, quality resampler.QualityPreset) (*Stream, error) {
	r, err := resampler.New(&resampler.Config{
		InputRate:  from,
		OutputRate: to,
		Channels:   domain.Stereo,
		Quality:    resampler.QualitySpec{Preset: quality},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating %.0f Hz to %.0f Hz stream: %v", domain.ErrResampling, from, to, err)
	}
	return &Stream{r: r, from: from, to: to}, nil
}

func (s *Stream) Rates() (from, to float64) {
	return s.from, s.to
}

func (s *Stream) Resample(in domain.Block, frames int) (domain.Block, error) {
	left, right := in.Planar()
	out, err := s.r.ProcessMulti([][]float64{left, right})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResampling, err)
	}
	if len(out) != domain.Stereo {
		return nil, fmt.Errorf("%w: resampler returned %d channels", domain.ErrResampling, len(out))
	}
	for c := range domain.Stereo {
		s.pending[c] = append(s.pending[c], out[c]...)
	}

	n := min(frames, len(s.pending[0]), len(s.pending[1]))
	block := domain.NewBlock(frames)
	pad := frames - n
	for i := range n {
		block[(pad+i)*domain.Stereo] = s.pending[0][i]
		block[(pad+i)*domain.Stereo+1] = s.pending[1][i]
	}
	for c := range domain.Stereo {
		s.pending[c] = s.pending[c][n:]
		// bound latency if the device clock drifts ahead of the mix
		if extra := len(s.pending[c]) - 2*frames; extra > 0 {
			s.pending[c] = s.pending[c][extra:]
		}
	}
	return block, nil
}

func (s *Stream) Reset() {
	s.r.Reset()
	s.pending = [domain.Stereo][]float64{}
}
