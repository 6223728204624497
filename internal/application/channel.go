package application

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"promixer/internal/domain"
	"promixer/internal/dsp"
)

// Channel is one input strip: a source, its DSP chain, fader, pan, mute and
// solo. Routing lives in the engine's matrix, not here.
type Channel struct {
	id   string
	kind domain.ChannelKind

	mu         sync.Mutex
	name       string
	faderDB    float64
	gain       float64
	pan        float64
	mute       bool
	solo       bool
	chain      *dsp.Chain
	source     Producer
	sampleRate float64
	level      domain.Level
}

func newChannel(spec domain.ChannelSpec, source Producer, sampleRate float64) *Channel {
	name := spec.Name
	if name == "" {
		name = spec.ID
	}
	return &Channel{
		id:         spec.ID,
		kind:       spec.Kind,
		name:       name,
		gain:       1,
		chain:      dsp.NewChain(sampleRate),
		source:     source,
		sampleRate: sampleRate,
		level:      domain.SilentLevel(),
	}
}

func (c *Channel) ID() string               { return c.id }
func (c *Channel) Kind() domain.ChannelKind { return c.kind }

func (c *Channel) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Channel) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// SetFaderDB clamps db to [-60, +12]. -60 is silence.
func (c *Channel) SetFaderDB(db float64) {
	clamped, gain := dsp.FaderGain(db)
	c.mu.Lock()
	c.faderDB, c.gain = clamped, gain
	c.mu.Unlock()
}

func (c *Channel) FaderDB() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.faderDB
}

func (c *Channel) Gain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}

func (c *Channel) SetPan(pan float64) {
	if math.IsNaN(pan) {
		pan = 0
	}
	c.mu.Lock()
	c.pan = math.Max(-1, math.Min(1, pan))
	c.mu.Unlock()
}

func (c *Channel) Pan() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pan
}

func (c *Channel) SetMute(mute bool) {
	c.mu.Lock()
	c.mute = mute
	c.mu.Unlock()
}

func (c *Channel) Mute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mute
}

func (c *Channel) SetSolo(solo bool) {
	c.mu.Lock()
	c.solo = solo
	c.mu.Unlock()
}

func (c *Channel) Solo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.solo
}

func (c *Channel) SetGate(enabled bool, thresholdDB float64) {
	c.updateDSP(func(p *domain.DSPParams) {
		p.GateEnabled, p.GateThresholdDB = enabled, thresholdDB
	})
}

func (c *Channel) SetEQ(lowDB, midDB, highDB float64) {
	c.updateDSP(func(p *domain.DSPParams) {
		p.EQLowDB, p.EQMidDB, p.EQHighDB = lowDB, midDB, highDB
	})
}

func (c *Channel) SetCompressor(enabled bool, thresholdDB, ratio float64) {
	c.updateDSP(func(p *domain.DSPParams) {
		p.CompEnabled, p.CompThresholdDB, p.CompRatio = enabled, thresholdDB, ratio
	})
}

func (c *Channel) DSP() domain.DSPParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chain.Params()
}

func (c *Channel) SetDSP(p domain.DSPParams) {
	c.mu.Lock()
	c.chain.SetParams(p)
	c.mu.Unlock()
}

func (c *Channel) updateDSP(fn func(*domain.DSPParams)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.chain.Params()
	fn(&p)
	c.chain.SetParams(p)
}

func (c *Channel) SampleRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampleRate
}

func (c *Channel) setSampleRate(rate float64) {
	c.mu.Lock()
	c.sampleRate = rate
	c.chain.SetSampleRate(rate)
	src := c.source
	c.mu.Unlock()
	if ra, ok := src.(rateAware); ok {
		ra.SetSampleRate(rate)
	}
}

func (c *Channel) Source() Producer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

func (c *Channel) setSource(p Producer) {
	c.mu.Lock()
	c.source = p
	c.mu.Unlock()
}

func (c *Channel) Level() domain.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// Produce pulls frames frames from the source for consumer and processes them.
func (c *Channel) Produce(frames int, consumer string) domain.Block {
	src := c.Source()
	if src == nil {
		return c.Process(domain.NewBlock(frames))
	}
	return c.Process(src.Produce(frames, consumer).Fit(frames))
}

// Process applies mute, DSP, fader and pan to a copy of raw and updates the
// channel meter. A muted channel returns silence without running DSP.
func (c *Channel) Process(raw domain.Block) domain.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mute {
		c.level = domain.SilentLevel()
		return domain.NewBlock(raw.Frames())
	}

	out := raw.Clone()
	c.chain.Process(out)
	if c.gain != 1 {
		floats.Scale(c.gain, out)
	}
	dsp.Pan(out, c.pan)
	c.level = dsp.Measure(out)
	return out
}

func (c *Channel) state() domain.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ChannelState{
		Name:    c.name,
		FaderDB: c.faderDB,
		Pan:     c.pan,
		Mute:    c.mute,
		Solo:    c.solo,
		DSP:     c.chain.Params(),
	}
}

func (c *Channel) restore(s domain.ChannelState) {
	if s.Name != "" {
		c.SetName(s.Name)
	}
	c.SetFaderDB(s.FaderDB)
	c.SetPan(s.Pan)
	c.SetMute(s.Mute)
	c.SetSolo(s.Solo)
	c.SetDSP(s.DSP)
}
