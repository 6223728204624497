package dsp

import "promixer/internal/domain"

const (
	LowCutoffHz  = 80.0
	MidLowHz     = 500.0
	MidHighHz    = 2000.0
	HighCutoffHz = 8000.0
)

// EQ is a three band equalizer. Each band isolates its region with a
// Butterworth filter and adds it back scaled by (gain - 1).
type EQ struct {
	LowDB, MidDB, HighDB float64

	low     *biquad
	midHP   *biquad
	midLP   *biquad
	high    *biquad
	scratch domain.Block
}

func NewEQ(sampleRate float64) *EQ {
	e := &EQ{}
	e.SetSampleRate(sampleRate)
	return e
}

func (e *EQ) SetSampleRate(sampleRate float64) {
	e.low = newBiquad(lowPass, LowCutoffHz, sampleRate)
	e.midHP = newBiquad(highPass, MidLowHz, sampleRate)
	e.midLP = newBiquad(lowPass, MidHighHz, sampleRate)
	e.high = newBiquad(highPass, HighCutoffHz, sampleRate)
}

func (e *EQ) Neutral() bool {
	return e.LowDB == 0 && e.MidDB == 0 && e.HighDB == 0
}

func (e *EQ) Process(b domain.Block) {
	if len(b) == 0 || e.Neutral() {
		return
	}
	dry := b.Clone()
	if e.LowDB != 0 {
		e.addBand(dry, b, e.LowDB, e.low)
	}
	if e.MidDB != 0 {
		e.addBand(dry, b, e.MidDB, e.midHP, e.midLP)
	}
	if e.HighDB != 0 {
		e.addBand(dry, b, e.HighDB, e.high)
	}
}

func (e *EQ) addBand(dry, out domain.Block, db float64, stages ...*biquad) {
	if cap(e.scratch) < len(dry) {
		e.scratch = make(domain.Block, len(dry))
	}
	band := e.scratch[:len(dry)]
	copy(band, dry)
	for _, s := range stages {
		s.process(band, band)
	}
	k := DBToLinear(db) - 1
	for i := range out {
		out[i] += band[i] * k
	}
}

func (e *EQ) reset() {
	for _, f := range []*biquad{e.low, e.midHP, e.midLP, e.high} {
		f.reset()
	}
}
