package application_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"promixer/internal/application"
	"promixer/internal/domain"
)

type fixedClock uint64

func (c *fixedClock) Cycle() uint64 { return uint64(*c) }

func TestHardwareSource_SameCycleSameSnapshot(t *testing.T) {
	clock := fixedClock(1)
	src := application.NewHardwareSource(4, &clock, 0, discardLogger())
	src.Push(domain.Block{0.1, 0.2, 0.3, 0.4})
	src.Push(domain.Block{0.5, 0.6, 0.7, 0.8})

	a := src.Produce(2, "A1")
	b := src.Produce(2, "A2")
	assert.Equal(t, a, b)
	assert.Equal(t, domain.Block{0.1, 0.2, 0.3, 0.4}, a)

	clock = 2
	assert.Equal(t, domain.Block{0.5, 0.6, 0.7, 0.8}, src.Produce(2, "A1"))
}

func TestHardwareSource_UnderrunIsSilence(t *testing.T) {
	clock := fixedClock(1)
	src := application.NewHardwareSource(4, &clock, 2, discardLogger())

	assert.Equal(t, domain.NewBlock(3), src.Produce(3, "A1"))
	clock = 2
	src.Produce(3, "A1")
	underruns, _ := src.Stats()
	assert.Equal(t, 2, underruns)
}

func TestHardwareSource_OverflowDropsOldest(t *testing.T) {
	clock := fixedClock(1)
	src := application.NewHardwareSource(2, &clock, 0, discardLogger())
	src.Push(domain.Block{1, 1})
	src.Push(domain.Block{2, 2})
	src.Push(domain.Block{3, 3})

	assert.Equal(t, domain.Block{2, 2, 3, 3}, src.Produce(2, "A1"))
	_, dropped := src.Stats()
	assert.Equal(t, 1, dropped)
}

func TestHardwareSource_CarriesPartialBlocks(t *testing.T) {
	clock := fixedClock(1)
	src := application.NewHardwareSource(4, &clock, 0, discardLogger())
	src.Push(domain.Block{1, 1, 2, 2, 3, 3})

	assert.Equal(t, domain.Block{1, 1, 2, 2}, src.Produce(2, "A1"))
	clock = 2
	assert.Equal(t, domain.Block{3, 3, 0, 0}, src.Produce(2, "A1"))
}

func TestHardwareSource_CaptureUpmixesMono(t *testing.T) {
	clock := fixedClock(1)
	src := application.NewHardwareSource(4, &clock, 0, discardLogger())
	src.Capture([]float32{0.5, -0.5}, 1)

	assert.Equal(t, domain.Block{0.5, 0.5, -0.5, -0.5}, src.Produce(2, "A1"))
	assert.InDelta(t, -6.02, src.CaptureLevel().PeakDB, 0.01)
}

func TestHardwareSource_LargerReadExtendsSnapshot(t *testing.T) {
	clock := fixedClock(1)
	src := application.NewHardwareSource(4, &clock, 0, discardLogger())
	src.Push(domain.Block{1, 1, 2, 2})
	src.Push(domain.Block{3, 3, 4, 4})

	assert.Equal(t, domain.Block{1, 1}, src.Produce(1, "A2"))
	assert.Equal(t, domain.Block{1, 1, 2, 2, 3, 3}, src.Produce(3, "A1"))
	assert.Equal(t, domain.Block{1, 1, 2, 2}, src.Produce(2, "B1"))

	clock = 2
	assert.Equal(t, domain.Block{4, 4, 0, 0}, src.Produce(2, "A1"))
}

type panickingProducer struct{}

func (panickingProducer) Produce(int, string) domain.Block { panic("boom") }

type shortProducer struct{}

func (shortProducer) Produce(int, string) domain.Block { return domain.Block{1, 1} }

func TestExternalPullSource(t *testing.T) {
	src := application.NewExternalPullSource(nil)
	assert.Equal(t, domain.NewBlock(4), src.Produce(4, "A1"))

	src.Set(panickingProducer{})
	assert.Equal(t, domain.NewBlock(4), src.Produce(4, "A1"))

	src.Set(shortProducer{})
	assert.Equal(t, domain.Block{1, 1, 0, 0}, src.Produce(2, "A1"))
}

func TestToneSource_IndependentPhase(t *testing.T) {
	src := application.NewToneSource(1000, 0.5, 48000)
	a := src.Produce(10, "A1")
	b := src.Produce(10, "A2")
	assert.Equal(t, a, b)

	next := src.Produce(10, "A1")
	assert.NotEqual(t, a, next)
	assert.InDelta(t, 0, a[0], 1e-12)
}
