// Package clip holds in-memory sample clips that several buses can read at
// once, each through its own cursor.
package clip

import (
	"time"

	"promixer/internal/domain"
)

// PrimaryConsumer is the cursor used by callers that do not read per bus.
const PrimaryConsumer = "primary"

type Clip struct {
	name       string
	path       string
	data       domain.Block
	sampleRate float64

	lock    spinLock
	playing bool
	looping bool
	volume  float64
	cursors map[string]int
}

// New wraps data, which must not be modified afterwards.
func New(name, path string, data domain.Block, sampleRate float64) *Clip {
	return &Clip{
		name:       name,
		path:       path,
		data:       data[:data.Frames()*domain.Stereo],
		sampleRate: sampleRate,
		volume:     1,
		cursors:    make(map[string]int),
	}
}

func (c *Clip) Name() string        { return c.name }
func (c *Clip) Path() string        { return c.path }
func (c *Clip) Frames() int         { return c.data.Frames() }
func (c *Clip) SampleRate() float64 { return c.sampleRate }

func (c *Clip) Duration() time.Duration {
	if c.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.Frames()) / c.sampleRate * float64(time.Second))
}

// Data returns the backing buffer. Callers must treat it as read-only.
func (c *Clip) Data() domain.Block {
	return c.data
}

func (c *Clip) Play() {
	c.lock.Lock()
	defer c.lock.Unlock()
	clear(c.cursors)
	c.playing = true
}

func (c *Clip) Stop() {
	c.lock.Lock()
	defer c.lock.Unlock()
	clear(c.cursors)
	c.playing = false
}

func (c *Clip) ResetCursors() {
	c.lock.Lock()
	defer c.lock.Unlock()
	clear(c.cursors)
}

func (c *Clip) Playing() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.playing
}

func (c *Clip) SetLooping(looping bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.looping = looping
}

func (c *Clip) Looping() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.looping
}

func (c *Clip) SetVolume(v float64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.volume = max(0, v)
}

func (c *Clip) Volume() float64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.volume
}

// carryFrom copies old's playback state onto c. Cursors are rescaled when
// the two clips differ in sample rate; a cursor past the end is dropped.
func (c *Clip) carryFrom(old *Clip) {
	old.lock.Lock()
	playing, looping, volume := old.playing, old.looping, old.volume
	cursors := make(map[string]int, len(old.cursors))
	for k, v := range old.cursors {
		cursors[k] = v
	}
	old.lock.Unlock()

	ratio := 1.0
	if old.sampleRate > 0 && c.sampleRate > 0 {
		ratio = c.sampleRate / old.sampleRate
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	c.playing = playing
	c.looping = looping
	c.volume = volume
	clear(c.cursors)
	for k, v := range cursors {
		if pos := int(float64(v)*ratio + 0.5); pos < c.data.Frames() {
			c.cursors[k] = pos
		}
	}
}

// Cursor returns the consumer's read offset in frames, or 0 if it never read.
func (c *Clip) Cursor(consumer string) int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.cursors[consumer]
}

// Produce returns frames frames for consumer and advances only that
// consumer's cursor. A looping clip wraps inside the same call. Reaching the
// end of a non-looping clip stops it for every consumer.
func (c *Clip) Produce(frames int, consumer string) domain.Block {
	out := domain.NewBlock(frames)
	total := c.data.Frames()

	c.lock.Lock()
	if !c.playing || frames <= 0 {
		c.lock.Unlock()
		return out
	}
	if total == 0 {
		c.playing = false
		c.lock.Unlock()
		return out
	}
	cursor := c.cursors[consumer]
	volume := c.volume
	looping := c.looping

	written := 0
	for written < frames {
		n := min(frames-written, total-cursor)
		copy(out[written*domain.Stereo:], c.data[cursor*domain.Stereo:(cursor+n)*domain.Stereo])
		written += n
		cursor += n
		if cursor < total {
			continue
		}
		if !looping {
			c.playing = false
			break
		}
		cursor = 0
	}
	c.cursors[consumer] = cursor
	c.lock.Unlock()

	if volume != 1 {
		for i := range out[:written*domain.Stereo] {
			out[i] *= volume
		}
	}
	return out
}
