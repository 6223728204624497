package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"promixer/internal/domain"
)

func Measure(b domain.Block) domain.Level {
	if len(b) == 0 {
		return domain.SilentLevel()
	}
	peak := math.Max(floats.Max(b), -floats.Min(b))
	rms := math.Sqrt(floats.Dot(b, b) / float64(len(b)))
	return domain.Level{
		PeakDB: LinearToDB(peak),
		RMSDB:  LinearToDB(rms),
	}
}
