package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"promixer/internal/domain"
)

const limiterKnee = 0.9

// Limit soft-clips b in place when its peak passes the knee, then hard-clips
// to [-1, 1].
func Limit(b domain.Block) {
	if len(b) == 0 {
		return
	}
	peak := math.Max(floats.Max(b), -floats.Min(b))
	if peak > limiterKnee {
		norm := math.Tanh(limiterKnee)
		for i, v := range b {
			b[i] = math.Tanh(v*limiterKnee) / norm
		}
	}
	for i, v := range b {
		b[i] = math.Max(-1, math.Min(1, v))
	}
}

// Pan attenuates the side opposite to the pan direction.
func Pan(b domain.Block, pan float64) {
	switch {
	case pan > 0:
		for i := 0; i < len(b); i += domain.Stereo {
			b[i] *= 1 - pan
		}
	case pan < 0:
		for i := 1; i < len(b); i += domain.Stereo {
			b[i] *= 1 + pan
		}
	}
}
