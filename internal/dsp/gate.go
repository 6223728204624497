package dsp

import (
	"math"

	"promixer/internal/domain"
)

const (
	GateWindowDB = 12.0
	// above this target gain a frame counts toward sustained signal
	gateVoiceLevel  = 0.7
	gateMinDuration = 0.080
	gateHold        = 0.250
	gateHoldGain    = 0.95
	gateAttack      = 0.015
	gateRelease     = 0.0008
)

// Gate is a noise gate that ignores short clicks. Signal must stay open for
// gateMinDuration before it is treated as voice, after which the gate is held
// near unity for gateHold even through short dips.
type Gate struct {
	Enabled     bool
	ThresholdDB float64

	sampleRate float64
	envelope   float64
	sustained  int
	holdLeft   int
	targets    []float64
}

func NewGate(sampleRate float64) *Gate {
	return &Gate{sampleRate: sampleRate, envelope: 1}
}

func (g *Gate) SetSampleRate(sampleRate float64) {
	g.sampleRate = sampleRate
}

func (g *Gate) Process(b domain.Block) {
	frames := b.Frames()
	if !g.Enabled || frames == 0 {
		return
	}

	if cap(g.targets) < frames {
		g.targets = make([]float64, frames)
	}
	targets := g.targets[:frames]
	above := false
	for i := range frames {
		l, r := b[i*domain.Stereo], b[i*domain.Stereo+1]
		rms := math.Sqrt((l*l + r*r) / 2)
		t := clamp01((LinearToDB(rms) - g.ThresholdDB) / GateWindowDB)
		targets[i] = t
		if t > gateVoiceLevel {
			above = true
		}
	}

	if above {
		g.sustained += frames
	} else {
		g.sustained = 0
	}
	if above && g.sustained >= int(gateMinDuration*g.sampleRate) {
		g.holdLeft = int(gateHold * g.sampleRate)
	}
	if g.holdLeft > 0 {
		for i, t := range targets {
			targets[i] = math.Max(t, gateHoldGain)
		}
		g.holdLeft -= frames
	}

	for i, t := range targets {
		if t > g.envelope {
			g.envelope += (t - g.envelope) * gateAttack
		} else {
			g.envelope += (t - g.envelope) * gateRelease
		}
		gain := clamp01(g.envelope)
		b[i*domain.Stereo] *= gain
		b[i*domain.Stereo+1] *= gain
	}
}

func (g *Gate) reset() {
	g.envelope = 1
	g.sustained = 0
	g.holdLeft = 0
}
