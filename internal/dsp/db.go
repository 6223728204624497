package dsp

import (
	"math"

	"promixer/internal/domain"
)

// Epsilon floors linear levels before log10 so silence reads as -200 dB instead of -Inf.
const Epsilon = 1e-10

func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

func LinearToDB(v float64) float64 {
	return 20 * math.Log10(math.Max(v, Epsilon))
}

// FaderGain clamps db to the fader range and returns the clamped value with its
// linear gain. The bottom of the range is a hard mute.
func FaderGain(db float64) (clamped, gain float64) {
	clamped = math.Max(domain.MinFaderDB, math.Min(domain.MaxFaderDB, db))
	if math.IsNaN(db) {
		clamped = domain.MinFaderDB
	}
	if clamped <= domain.MinFaderDB {
		return clamped, 0
	}
	return clamped, DBToLinear(clamped)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
