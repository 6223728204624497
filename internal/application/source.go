package application

import (
	"log/slog"
	"math"
	"sync"

	"promixer/internal/domain"
	"promixer/internal/dsp"
)

// Producer is the one capability every channel source has: hand out frames
// frames of stereo audio for a consumer, usually a bus id.
type Producer interface {
	Produce(frames int, consumer string) domain.Block
}

// Clock exposes the engine's callback cycle counter.
type Clock interface {
	Cycle() uint64
}

type rateAware interface {
	SetSampleRate(rate float64)
}

// HardwareSource is fed by a capture callback through a bounded queue and
// read by bus callbacks. The first read in a cycle drains the queue; later
// reads in the same cycle get the same snapshot, extended from the queue when
// a read asks for more frames than the snapshot holds.
type HardwareSource struct {
	queue     chan domain.Block
	clock     Clock
	warnAfter int
	logger    *slog.Logger

	mu        sync.Mutex
	carry     domain.Block
	snap      domain.Block
	snapCycle uint64
	hasSnap   bool
	underruns int
	dropped   int
	captured  domain.Level
}

func NewHardwareSource(depth int, clock Clock, warnAfter int, logger *slog.Logger) *HardwareSource {
	if depth < 1 {
		depth = 1
	}
	return &HardwareSource{
		queue:     make(chan domain.Block, depth),
		clock:     clock,
		warnAfter: warnAfter,
		logger:    logger,
		captured:  domain.SilentLevel(),
	}
}

// Push enqueues without blocking. When the queue is full the oldest block is
// dropped to make room.
func (h *HardwareSource) Push(b domain.Block) {
	select {
	case h.queue <- b:
		return
	default:
	}

	select {
	case <-h.queue:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	default:
	}

	select {
	case h.queue <- b:
	default:
	}
}

func (h *HardwareSource) Produce(frames int, _ string) domain.Block {
	cycle := h.clock.Cycle()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hasSnap && h.snapCycle == cycle {
		if extra := frames - h.snap.Frames(); extra > 0 {
			h.snap = append(h.snap, h.drain(extra)...)
		}
		return h.snap.Fit(frames).Clone()
	}

	block := h.drain(frames)
	h.snap = block
	h.snapCycle = cycle
	h.hasSnap = true
	return block.Clone()
}

func (h *HardwareSource) drain(frames int) domain.Block {
	out := domain.NewBlock(frames)
	n := copy(out, h.carry)
	h.carry = h.carry[n:]

	for n < len(out) {
		select {
		case b := <-h.queue:
			m := copy(out[n:], b)
			n += m
			if m < len(b) {
				h.carry = append(h.carry[:0:0], b[m:]...)
			}
			continue
		default:
		}
		break
	}

	if n < len(out) {
		h.underruns++
		if h.warnAfter > 0 && h.underruns == h.warnAfter {
			h.logger.Warn("hardware input underrun", "consecutive_blocks", h.underruns)
		}
	} else {
		h.underruns = 0
	}
	return out
}

// Capture is the input stream's callback. Mono input is duplicated to
// both sides and extra channels are dropped.
func (h *HardwareSource) Capture(in []float32, channels int) {
	b := domain.FromInterleaved(in, channels)
	level := dsp.Measure(b)
	h.Push(b)
	h.mu.Lock()
	h.captured = level
	h.mu.Unlock()
}

// Stats returns consecutive underruns and total dropped blocks.
func (h *HardwareSource) Stats() (underruns, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.underruns, h.dropped
}

func (h *HardwareSource) CaptureLevel() domain.Level {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.captured
}

// Reset drops queued audio and the current snapshot.
func (h *HardwareSource) Reset() {
	for {
		select {
		case <-h.queue:
			continue
		default:
		}
		break
	}
	h.mu.Lock()
	h.carry = nil
	h.snap = nil
	h.hasSnap = false
	h.underruns = 0
	h.mu.Unlock()
}

// BusFeedSource replays another bus's most recent post-limiter block.
type BusFeedSource struct {
	bus *Bus
}

func NewBusFeedSource(bus *Bus) *BusFeedSource {
	return &BusFeedSource{bus: bus}
}

func (s *BusFeedSource) Produce(frames int, _ string) domain.Block {
	return s.bus.Last(frames)
}

// ExternalPullSource lets a collaborator outside the engine supply audio. A
// missing or misbehaving producer yields silence.
type ExternalPullSource struct {
	mu    sync.RWMutex
	inner Producer
}

func NewExternalPullSource(p Producer) *ExternalPullSource {
	return &ExternalPullSource{inner: p}
}

func (s *ExternalPullSource) Set(p Producer) {
	s.mu.Lock()
	s.inner = p
	s.mu.Unlock()
}

func (s *ExternalPullSource) Produce(frames int, consumer string) (out domain.Block) {
	s.mu.RLock()
	p := s.inner
	s.mu.RUnlock()
	if p == nil {
		return domain.NewBlock(frames)
	}
	defer func() {
		if recover() != nil {
			out = domain.NewBlock(frames)
		}
	}()
	return p.Produce(frames, consumer).Fit(frames)
}

// ToneSource is a sine generator with an independent phase per consumer.
type ToneSource struct {
	mu     sync.Mutex
	freq   float64
	level  float64
	rate   float64
	phases map[string]float64
}

func NewToneSource(freq, level, sampleRate float64) *ToneSource {
	return &ToneSource{
		freq:   freq,
		level:  level,
		rate:   sampleRate,
		phases: make(map[string]float64),
	}
}

func (t *ToneSource) SetSampleRate(rate float64) {
	t.mu.Lock()
	t.rate = rate
	t.mu.Unlock()
}

func (t *ToneSource) SetTone(freq, level float64) {
	t.mu.Lock()
	t.freq, t.level = freq, level
	t.mu.Unlock()
}

func (t *ToneSource) Produce(frames int, consumer string) domain.Block {
	out := domain.NewBlock(frames)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rate <= 0 {
		return out
	}
	phase := t.phases[consumer]
	step := 2 * math.Pi * t.freq / t.rate
	for i := range frames {
		v := t.level * math.Sin(phase)
		out[i*domain.Stereo] = v
		out[i*domain.Stereo+1] = v
		phase += step
	}
	t.phases[consumer] = math.Mod(phase, 2*math.Pi)
	return out
}
