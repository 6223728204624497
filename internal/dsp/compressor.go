package dsp

import (
	"math"

	"promixer/internal/domain"
)

// Compressor reduces each frame whose RMS exceeds the threshold by
// (rms - threshold) * (1 - 1/ratio) dB.
type Compressor struct {
	Enabled     bool
	ThresholdDB float64
	Ratio       float64
}

func (c *Compressor) Process(b domain.Block) {
	if !c.Enabled || len(b) == 0 {
		return
	}
	ratio := math.Max(1, c.Ratio)
	slope := 1 - 1/ratio
	for i := 0; i+1 < len(b); i += domain.Stereo {
		l, r := b[i], b[i+1]
		db := LinearToDB(math.Sqrt((l*l + r*r) / 2))
		if db <= c.ThresholdDB {
			continue
		}
		gain := DBToLinear(-(db - c.ThresholdDB) * slope)
		b[i] *= gain
		b[i+1] *= gain
	}
}
