package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promixer/config"
	"promixer/internal/application"
	"promixer/internal/domain"
	"promixer/internal/infra/virtual"
	"promixer/internal/infra/wavfile"
)

func testEngine(t *testing.T, cfg *config.Config) *application.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := virtual.New(logger, virtual.WithManualClock())
	t.Cleanup(func() { _ = backend.Close() })

	engine, err := newEngine(cfg, backend, logger, nil)
	require.NoError(t, err)
	t.Cleanup(engine.StopAll)
	return engine
}

func TestClipName(t *testing.T) {
	assert.Equal(t, "airhorn", clipName("/clips/airhorn.wav"))
	assert.Equal(t, "intro.v2", clipName("intro.v2.mp3"))
	assert.Equal(t, "noext", clipName("noext"))
}

func TestStateFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "mixer.yaml")

	first := testEngine(t, config.Default())
	hw1, err := first.Channel("HW1")
	require.NoError(t, err)
	hw1.SetFaderDB(-6)
	hw1.SetPan(-0.5)
	require.NoError(t, first.SetChannelRouting("HW1", "B2", true))
	a2, err := first.Bus("A2")
	require.NoError(t, err)
	a2.SetMute(true)
	require.NoError(t, first.SetBusDevice("A3", virtual.SpeakersID))

	require.NoError(t, saveState(first, path))
	_, err = os.Stat(path + ".tmp")
	assert.ErrorIs(t, err, os.ErrNotExist)

	second := testEngine(t, config.Default())
	require.NoError(t, loadState(second, path))
	assert.Equal(t, first.State(), second.State())

	hw1, _ = second.Channel("HW1")
	assert.Equal(t, -6.0, hw1.FaderDB())
	routing, err := second.Routing("HW1")
	require.NoError(t, err)
	assert.True(t, routing["B2"])
	dev, ok := mustBus(t, second, "A3").Device()
	assert.True(t, ok)
	assert.Equal(t, virtual.SpeakersID, dev)
}

func TestLoadState_MissingFileIsNotAnError(t *testing.T) {
	engine := testEngine(t, config.Default())
	assert.NoError(t, loadState(engine, filepath.Join(t.TempDir(), "none.yaml")))
}

func TestLoadState_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channels: [oops"), 0o644))

	engine := testEngine(t, config.Default())
	assert.ErrorContains(t, loadState(engine, path), "parsing state file")
}

func TestApplyBindings(t *testing.T) {
	engine := testEngine(t, config.Default())

	applyBindings(engine, config.BindingsConfig{
		Outputs: map[string]int{"A1": virtual.SpeakersID, "B1": 99},
		Inputs:  map[string]int{"HW1": virtual.MicID, "HW2": 99},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	dev, ok := mustBus(t, engine, "A1").Device()
	assert.True(t, ok)
	assert.Equal(t, virtual.SpeakersID, dev)

	dev, ok = engine.InputDevice("HW1")
	assert.True(t, ok)
	assert.Equal(t, virtual.MicID, dev)
	hw1, _ := engine.Channel("HW1")
	assert.Equal(t, 12.0, hw1.FaderDB())
	assert.Equal(t, "Virtual Microphone", hw1.Name())

	_, ok = engine.InputDevice("HW2")
	assert.False(t, ok)
}

func TestLoadClips(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	writer := wavfile.New(16, logger)

	tone := domain.NewBlock(4800)
	for i := range tone {
		tone[i] = 0.25
	}
	require.NoError(t, writer.WriteRecording(filepath.Join(dir, "beep.wav"), tone, 48000))
	require.NoError(t, writer.WriteRecording(filepath.Join(dir, "boop.wav"), tone, 48000))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0o644))

	cfg := config.Default()
	volume := 0.5
	cfg.ClipDir = dir
	cfg.Clips = []config.ClipConfig{
		{Name: "intro", Path: filepath.Join(dir, "beep.wav"), Volume: &volume, Looping: true},
		{Path: filepath.Join(dir, "missing.wav")},
	}
	engine := testEngine(t, cfg)

	loadClips(engine, cfg, logger)

	assert.Equal(t, []string{"beep", "boop", "intro"}, engine.Clips().Names())
	intro, err := engine.Clips().Get("intro")
	require.NoError(t, err)
	assert.Equal(t, 0.5, intro.Volume())
	assert.True(t, intro.Looping())
	assert.Equal(t, 4800, intro.Frames())
}

func mustBus(t *testing.T, e *application.Engine, id string) *application.Bus {
	t.Helper()
	b, err := e.Bus(id)
	require.NoError(t, err)
	return b
}
