package dsp

import (
	"math"

	"promixer/internal/domain"
)

// biquad is a 2nd-order Butterworth section in transposed direct form II.
// State is kept per stereo side so consecutive blocks join without clicks.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     [domain.Stereo]float64
}

const butterworthQ = 1 / math.Sqrt2

type filterKind int

const (
	lowPass filterKind = iota
	highPass
)

func newBiquad(kind filterKind, cutoff, sampleRate float64) *biquad {
	f := &biquad{}
	f.design(kind, cutoff, sampleRate)
	return f
}

func (f *biquad) design(kind filterKind, cutoff, sampleRate float64) {
	nyquist := sampleRate / 2
	cutoff = math.Max(1, math.Min(cutoff, nyquist*0.99))

	w0 := 2 * math.Pi * cutoff / sampleRate
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * butterworthQ)
	a0 := 1 + alpha

	switch kind {
	case lowPass:
		f.b0 = (1 - cosw) / 2 / a0
		f.b1 = (1 - cosw) / a0
		f.b2 = f.b0
	case highPass:
		f.b0 = (1 + cosw) / 2 / a0
		f.b1 = -(1 + cosw) / a0
		f.b2 = f.b0
	}
	f.a1 = -2 * cosw / a0
	f.a2 = (1 - alpha) / a0
}

func (f *biquad) reset() {
	f.z1 = [domain.Stereo]float64{}
	f.z2 = [domain.Stereo]float64{}
}

// process filters in into out; the two may alias.
func (f *biquad) process(in, out domain.Block) {
	for i := 0; i+1 < len(in); i += domain.Stereo {
		for c := range domain.Stereo {
			x := in[i+c]
			y := f.b0*x + f.z1[c]
			f.z1[c] = f.b1*x - f.a1*y + f.z2[c]
			f.z2[c] = f.b2*x - f.a2*y
			out[i+c] = y
		}
	}
}
