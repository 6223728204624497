package application

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"promixer/internal/domain"
)

// recordChunkFrames is the size of each preallocated recording chunk,
// a little over a second at 48 kHz.
const recordChunkFrames = 1 << 16

// recorder accumulates post-limiter blocks of one bus in fixed-size chunks,
// so a long take never copies what it already holds.
type recorder struct {
	mu     sync.Mutex
	active bool
	busID  string
	rate   float64
	chunks []domain.Block
	frames int
}

func newChunk() domain.Block {
	return make(domain.Block, 0, recordChunkFrames*domain.Stereo)
}

func (r *recorder) start(busID string, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	r.busID = busID
	r.rate = rate
	r.chunks = []domain.Block{newChunk()}
	r.frames = 0
}

func (r *recorder) append(busID string, b domain.Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active || r.busID != busID {
		return
	}
	r.frames += b.Frames()
	for len(b) > 0 {
		last := len(r.chunks) - 1
		if last < 0 || len(r.chunks[last]) == cap(r.chunks[last]) {
			r.chunks = append(r.chunks, newChunk())
			last++
		}
		n := min(len(b), cap(r.chunks[last])-len(r.chunks[last]))
		r.chunks[last] = append(r.chunks[last], b[:n]...)
		b = b[n:]
	}
}

// take joins and clears what was captured. Caller holds r.mu.
func (r *recorder) take() (domain.Block, float64) {
	data := make(domain.Block, 0, r.frames*domain.Stereo)
	for _, c := range r.chunks {
		data = append(data, c...)
	}
	rate := r.rate
	r.chunks = nil
	r.frames = 0
	return data, rate
}

func (r *recorder) stop() (domain.Block, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	return r.take()
}

// split hands back what was captured at the old rate and keeps recording at
// rate. ok is false when nothing is being recorded.
func (r *recorder) split(rate float64) (data domain.Block, oldRate float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return nil, 0, false
	}
	data, oldRate = r.take()
	r.rate = rate
	r.chunks = []domain.Block{newChunk()}
	return data, oldRate, true
}

func (r *recorder) status() (string, bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busID, r.active, r.frames
}

// StartRecording captures busID's output from the next callback on. An
// unnamed bus means the configured recording bus. Any recording in progress
// is discarded.
func (e *Engine) StartRecording(busID string) error {
	if busID == "" {
		busID = e.cfg.RecordingBus
	}
	if _, err := e.Bus(busID); err != nil {
		return err
	}
	e.rec.start(busID, e.SampleRate())
	e.logger.Info("recording started", "bus", busID)
	return nil
}

// StopRecording writes what was captured to path and returns it. An empty
// path picks a unique name in the recording directory. Nothing recorded
// returns "".
func (e *Engine) StopRecording(path string) (string, error) {
	data, rate := e.rec.stop()
	if data.Frames() == 0 {
		e.logger.Info("recording stopped, nothing captured")
		return "", nil
	}
	return e.saveRecording(path, data, rate)
}

func (e *Engine) saveRecording(path string, data domain.Block, rate float64) (string, error) {
	if e.writer == nil {
		return "", fmt.Errorf("saving recording: no writer configured")
	}
	if path == "" {
		path = filepath.Join(e.cfg.RecordingDir, fmt.Sprintf("recording-%s.wav", uuid.NewString()))
	}
	if err := e.writer.WriteRecording(path, data, rate); err != nil {
		return "", fmt.Errorf("saving recording: %w", err)
	}
	e.logger.Info("recording saved", "path", path, "frames", data.Frames(), "sample_rate", rate)
	return path, nil
}

// splitRecording saves what a running recording captured before a sample
// rate change under a new name and continues at rate.
func (e *Engine) splitRecording(rate float64) {
	data, oldRate, ok := e.rec.split(rate)
	if !ok || data.Frames() == 0 {
		return
	}
	path, err := e.saveRecording("", data, oldRate)
	if err != nil {
		e.logger.Error("saving recording before sample rate change", "error", err)
		return
	}
	e.logger.Warn("recording split at sample rate change", "path", path, "from", oldRate, "to", rate)
}

// Recording reports the recording bus, whether it is active and how many
// frames are held.
func (e *Engine) Recording() (busID string, active bool, frames int) {
	return e.rec.status()
}
