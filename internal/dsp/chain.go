package dsp

import "promixer/internal/domain"

// Chain runs gate, EQ and compressor in that order. It holds filter and
// envelope state and must not be shared between channels.
type Chain struct {
	gate *Gate
	eq   *EQ
	comp Compressor
}

func NewChain(sampleRate float64) *Chain {
	c := &Chain{
		gate: NewGate(sampleRate),
		eq:   NewEQ(sampleRate),
	}
	c.SetParams(domain.DefaultDSPParams())
	return c
}

func (c *Chain) Params() domain.DSPParams {
	return domain.DSPParams{
		GateEnabled:     c.gate.Enabled,
		GateThresholdDB: c.gate.ThresholdDB,
		EQLowDB:         c.eq.LowDB,
		EQMidDB:         c.eq.MidDB,
		EQHighDB:        c.eq.HighDB,
		CompEnabled:     c.comp.Enabled,
		CompThresholdDB: c.comp.ThresholdDB,
		CompRatio:       c.comp.Ratio,
	}
}

func (c *Chain) SetParams(p domain.DSPParams) {
	if !p.GateEnabled && c.gate.Enabled {
		c.gate.reset()
	}
	c.gate.Enabled = p.GateEnabled
	c.gate.ThresholdDB = p.GateThresholdDB
	c.eq.LowDB, c.eq.MidDB, c.eq.HighDB = p.EQLowDB, p.EQMidDB, p.EQHighDB
	c.comp.Enabled = p.CompEnabled
	c.comp.ThresholdDB = p.CompThresholdDB
	c.comp.Ratio = max(1, p.CompRatio)
}

// Neutral reports whether Process would leave every block untouched.
func (c *Chain) Neutral() bool {
	return !c.gate.Enabled && !c.comp.Enabled && c.eq.Neutral()
}

// Process transforms b in place.
func (c *Chain) Process(b domain.Block) {
	if len(b) == 0 || c.Neutral() {
		return
	}
	c.gate.Process(b)
	c.eq.Process(b)
	c.comp.Process(b)
}

func (c *Chain) SetSampleRate(sampleRate float64) {
	c.gate.SetSampleRate(sampleRate)
	c.eq.SetSampleRate(sampleRate)
}

func (c *Chain) Reset() {
	c.gate.reset()
	c.eq.reset()
}
