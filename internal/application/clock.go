package application

import "sync/atomic"

// cycleClock counts output callback cycles. Only the leader bus, the first
// output to render, advances it so every other bus sees the same cycle id
// until the leader's next callback.
type cycleClock struct {
	cycle  atomic.Uint64
	leader atomic.Value
}

func newCycleClock() *cycleClock {
	c := &cycleClock{}
	c.leader.Store("")
	return c
}

func (c *cycleClock) Cycle() uint64 {
	return c.cycle.Load()
}

// tick is called at the top of each bus callback.
func (c *cycleClock) tick(busID string) uint64 {
	if c.leader.CompareAndSwap("", busID) || c.leader.Load() == busID {
		return c.cycle.Add(1)
	}
	return c.cycle.Load()
}

func (c *cycleClock) Leader() string {
	return c.leader.Load().(string)
}

// release gives up leadership if busID holds it.
func (c *cycleClock) release(busID string) {
	c.leader.CompareAndSwap(busID, "")
}

func (c *cycleClock) reset() {
	c.leader.Store("")
}
