package application

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"promixer/internal/domain"
)

// busRenderer is the output callback of one bus stream.
type busRenderer struct {
	e   *Engine
	bus *Bus
}

func (r *busRenderer) Render(out []float32, channels int) {
	defer func() {
		if p := recover(); p != nil {
			clear(out)
			r.e.logLimited("panic:"+r.bus.id, "recovered panic in output callback", "bus", r.bus.id, "panic", p)
		}
	}()
	r.e.render(r.bus, out, channels)
}

func (e *Engine) render(b *Bus, out []float32, channels int) {
	if channels <= 0 || len(out)%channels != 0 {
		clear(out)
		e.logLimited("shape:"+b.id, "dropping output block",
			"bus", b.id,
			"error", fmt.Errorf("%w: %d samples for %d channels", domain.ErrBufferShape, len(out), channels),
		)
		return
	}
	deviceFrames := len(out) / channels

	e.clock.tick(b.id)
	mix := e.mix(b, b.engineFrames(deviceFrames))

	block := mix
	if r := b.blockResampler(); r != nil {
		converted, err := r.Resample(mix, deviceFrames)
		if err != nil {
			e.logLimited("resample:"+b.id, "resampling bus output", "bus", b.id, "error", err)
			converted = domain.NewBlock(deviceFrames)
		}
		block = converted
	}

	if len(block) != deviceFrames*domain.Stereo {
		clear(out)
		e.logLimited("shape:"+b.id, "dropping output block",
			"bus", b.id,
			"error", fmt.Errorf("%w: %d frames for a %d frame buffer", domain.ErrBufferShape, block.Frames(), deviceFrames),
		)
		return
	}
	block.WriteInterleaved(out, channels)
}

// mix sums the bus at the engine rate and runs the master stage.
func (e *Engine) mix(b *Bus, frames int) domain.Block {
	e.mu.RLock()
	sum := e.sumLocked(b.id, frames)
	e.mu.RUnlock()

	b.master(sum)
	e.rec.append(b.id, sum)
	return sum
}

// sumLocked adds every channel routed to busID. If any of them is soloed only
// soloed channels are heard. Caller holds e.mu.
func (e *Engine) sumLocked(busID string, frames int) domain.Block {
	sum := domain.NewBlock(frames)

	routed := make([]*Channel, 0, len(e.order))
	solo := false
	for _, id := range e.order {
		if !e.routing.enabled(id, busID) {
			continue
		}
		ch := e.channels[id]
		routed = append(routed, ch)
		if ch.Solo() {
			solo = true
		}
	}

	for _, ch := range routed {
		if solo && !ch.Solo() {
			continue
		}
		floats.Add(sum, ch.Produce(frames, busID))
	}
	return sum
}

// Sum returns what busID receives from its channels before fader and limiter.
// Sources advance as they would in a callback.
func (e *Engine) Sum(busID string, frames int) (domain.Block, error) {
	if _, err := e.Bus(busID); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sumLocked(busID, frames), nil
}

// Mix renders one block of busID at the engine rate without a device,
// including fader, limiter, metering and recording. While no output stream
// runs, Mix drives the cycle clock itself so hardware queues keep draining.
func (e *Engine) Mix(busID string, frames int) (domain.Block, error) {
	b, err := e.Bus(busID)
	if err != nil {
		return nil, err
	}
	if !e.anyOutputRunning() {
		e.clock.tick(busID)
	}
	return e.mix(b, frames), nil
}

// Clock exposes the callback cycle counter hardware sources key their
// snapshots on.
func (e *Engine) Clock() Clock {
	return e.clock
}
