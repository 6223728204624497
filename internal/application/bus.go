package application

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"promixer/internal/domain"
	"promixer/internal/dsp"
)

// Bus is an output mix point bound to at most one device.
type Bus struct {
	id string

	mu      sync.Mutex
	faderDB float64
	gain    float64
	mute    bool
	device  *int

	stream         Stream
	deviceRate     float64
	deviceChannels int
	engineRate     float64
	resampler      BlockResampler
	carry          float64

	last  domain.Block
	level domain.Level
}

func newBus(id string, engineRate float64) *Bus {
	return &Bus{
		id:         id,
		gain:       1,
		engineRate: engineRate,
		level:      domain.SilentLevel(),
	}
}

func (b *Bus) ID() string { return b.id }

func (b *Bus) SetFaderDB(db float64) {
	clamped, gain := dsp.FaderGain(db)
	b.mu.Lock()
	b.faderDB, b.gain = clamped, gain
	b.mu.Unlock()
}

func (b *Bus) FaderDB() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.faderDB
}

func (b *Bus) SetMute(mute bool) {
	b.mu.Lock()
	b.mute = mute
	b.mu.Unlock()
}

func (b *Bus) Mute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mute
}

// Device returns the bound output device id.
func (b *Bus) Device() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == nil {
		return 0, false
	}
	return *b.device, true
}

func (b *Bus) bind(id *int) {
	b.mu.Lock()
	b.device = id
	b.mu.Unlock()
}

func (b *Bus) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stream != nil
}

// SampleRate is the engine-side rate the bus mixes at.
func (b *Bus) SampleRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engineRate
}

// DeviceRate is the rate of the open stream, or 0 when stopped.
func (b *Bus) DeviceRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deviceRate
}

// Resampling reports whether output is converted before reaching the device.
func (b *Bus) Resampling() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resampler != nil
}

func (b *Bus) Level() domain.Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

// Last returns a copy of the most recent post-limiter block fitted to frames.
func (b *Bus) Last(frames int) domain.Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last.Fit(frames).Clone()
}

func (b *Bus) setEngineRate(rate float64) {
	b.mu.Lock()
	b.engineRate = rate
	b.mu.Unlock()
}

func (b *Bus) attach(s Stream, cfg StreamConfig, r BlockResampler) {
	b.mu.Lock()
	b.stream = s
	b.deviceRate = cfg.SampleRate
	b.deviceChannels = cfg.Channels
	b.resampler = r
	b.carry = 0
	b.mu.Unlock()
}

func (b *Bus) detach() Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stream
	b.stream = nil
	b.deviceRate = 0
	b.deviceChannels = 0
	b.resampler = nil
	b.carry = 0
	return s
}

// engineFrames is how many frames to mix at the engine rate to fill
// deviceFrames at the device rate. The fractional remainder carries over so
// the long-run ratio is exact.
func (b *Bus) engineFrames(deviceFrames int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.resampler == nil || b.deviceRate <= 0 {
		return deviceFrames
	}
	exact := float64(deviceFrames)*b.engineRate/b.deviceRate + b.carry
	n := math.Floor(exact)
	b.carry = exact - n
	return max(1, int(n))
}

func (b *Bus) blockResampler() BlockResampler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resampler
}

// master applies fader, mute and the limiter to mix in place and meters it.
func (b *Bus) master(mix domain.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.mute:
		clear(mix)
	case b.gain != 1:
		floats.Scale(b.gain, mix)
	}
	dsp.Limit(mix)
	b.level = dsp.Measure(mix)
	if cap(b.last) < len(mix) {
		b.last = make(domain.Block, len(mix))
	}
	b.last = b.last[:len(mix)]
	copy(b.last, mix)
}

func (b *Bus) state() domain.BusState {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := domain.BusState{FaderDB: b.faderDB, Mute: b.mute}
	if b.device != nil {
		id := *b.device
		s.Device = &id
	}
	return s
}
