package tests

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promixer/internal/application"
	"promixer/internal/domain"
	"promixer/internal/infra/control"
	"promixer/internal/infra/decode"
	"promixer/internal/infra/resample"
	"promixer/internal/infra/virtual"
	"promixer/internal/infra/wavfile"
)

const blockSize = 256

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeSine stores a 16-bit stereo sine clip and returns its path.
func writeSine(t *testing.T, dir string, rate int, seconds float64) string {
	t.Helper()
	frames := int(float64(rate) * seconds)
	data := make([]int, frames*2)
	for i := range frames {
		v := int(0.5 * 32767 * math.Sin(2*math.Pi*1000*float64(i)/float64(rate)))
		data[2*i], data[2*i+1] = v, v
	}

	path := filepath.Join(dir, "beep.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	enc := wav.NewEncoder(f, rate, 16, 2, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: rate},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}

func newEngine(t *testing.T, backend application.DeviceBackend, cfg application.EngineConfig) *application.Engine {
	t.Helper()
	logger := discardLogger()
	factory, err := resample.NewFactory("low", "high")
	require.NoError(t, err)

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	cfg.BlockSize = blockSize
	cfg.DefaultInputFaderDB = 0
	cfg.RecordingDir = t.TempDir()

	e, err := application.NewEngine(cfg, backend, logger,
		application.WithResampler(factory),
		application.WithDecoder(decode.New(logger)),
		application.WithRecordingWriter(wavfile.New(16, logger)),
	)
	require.NoError(t, err)
	return e
}

func peak(samples []float32) float64 {
	p := 0.0
	for _, v := range samples {
		p = math.Max(p, math.Abs(float64(v)))
	}
	return p
}

func TestIntegration_ClipThroughVirtualCable(t *testing.T) {
	backend := virtual.New(discardLogger(), virtual.WithManualClock())
	e := newEngine(t, backend, application.EngineConfig{})

	require.NoError(t, e.LoadClip(writeSine(t, t.TempDir(), 44100, 0.5), ""))
	clip, err := e.Clips().Get("beep")
	require.NoError(t, err)
	assert.Equal(t, 48000.0, clip.SampleRate())
	assert.InDelta(t, 24000, clip.Frames(), 1)

	// soundboard -> B1 -> cable -> HW1 -> A1 -> speakers
	require.NoError(t, e.SetChannelRouting("SOUNDBOARD", "B1", true))
	require.NoError(t, e.SetBusDevice("A1", virtual.SpeakersID))
	require.NoError(t, e.SetBusDevice("B1", virtual.CableID))
	require.NoError(t, e.StartInput("HW1", virtual.CableID))
	require.NoError(t, e.StartAll())
	defer e.StopAll()

	hw1, _ := e.Channel("HW1")
	assert.Equal(t, "Virtual Cable", hw1.Name())

	srv := control.NewServer(":0", "", e, nil, discardLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clips/beep/play", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, e.StartRecording("A1"))

	for range 10 {
		backend.Step()
	}

	speakers, blocks := backend.Last(virtual.SpeakersID)
	assert.Equal(t, 10, blocks)
	assert.Greater(t, peak(speakers), 0.3)

	meters := e.Meters()
	assert.Greater(t, meters.Buses["A1"].PeakDB, -10.0)
	assert.Greater(t, meters.Inputs["HW1"].PeakDB, -10.0)
	assert.Equal(t, domain.SilenceDB, meters.Buses["A2"].PeakDB)

	path := filepath.Join(t.TempDir(), "take.wav")
	saved, err := e.StopRecording(path)
	require.NoError(t, err)
	assert.Equal(t, path, saved)
	block, rate, err := decode.New(discardLogger()).Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 48000.0, rate)
	assert.Equal(t, 10*blockSize, block.Frames())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/meters", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIntegration_RenegotiateAndResample(t *testing.T) {
	headset := virtual.Device{Device: domain.Device{
		ID: 10, Name: "USB Headset", OutputChannels: 2, SampleRate: 48000,
	}, Rates: []float64{48000}}
	dac := virtual.DefaultDevices()[virtual.DAC44kID]
	backend := virtual.New(discardLogger(), virtual.WithManualClock(), virtual.WithDevices(dac, headset))
	e := newEngine(t, backend, application.EngineConfig{})

	require.NoError(t, e.LoadClip(writeSine(t, t.TempDir(), 44100, 1), "beep"))
	require.NoError(t, e.SetChannelRouting("SOUNDBOARD", "A2", true))
	require.NoError(t, e.SetBusDevice("A1", virtual.DAC44kID))
	require.NoError(t, e.SetBusDevice("A2", headset.ID))
	require.NoError(t, e.StartAll())
	defer e.StopAll()

	assert.Equal(t, 44100.0, e.SampleRate())
	clip, _ := e.Clips().Get("beep")
	assert.Equal(t, 44100.0, clip.SampleRate())
	a2, _ := e.Bus("A2")
	assert.True(t, a2.Resampling())

	require.NoError(t, e.PlayClip("beep"))
	for range 20 {
		backend.Step()
	}

	out, blocks := backend.Last(headset.ID)
	assert.Equal(t, 20, blocks)
	require.Len(t, out, blockSize*2)
	assert.Greater(t, peak(out), 0.2)
	assert.Less(t, peak(out), 1.0)
}

func TestIntegration_UnpluggedDeviceIsReported(t *testing.T) {
	backend := virtual.New(discardLogger(), virtual.WithManualClock())
	events := control.NewEventLog(0)
	logger := discardLogger()
	e, err := application.NewEngine(application.EngineConfig{
		SampleRate:          48000,
		BlockSize:           blockSize,
		DeviceCheckInterval: 5 * time.Millisecond,
	}, backend, logger, application.WithNotifier(events))
	require.NoError(t, err)
	require.NoError(t, e.SetBusDevice("A1", virtual.SpeakersID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	a1, _ := e.Bus("A1")
	require.Eventually(t, a1.Running, time.Second, time.Millisecond)
	backend.Remove(virtual.SpeakersID)
	require.Eventually(t, func() bool { return !a1.Running() }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return len(events.Events()) > 0 }, time.Second, time.Millisecond)
	assert.Contains(t, events.Events()[0].Message, "bus A1")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
