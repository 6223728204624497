package clip

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"promixer/internal/domain"
)

// Library is the active clip set. As a source it mixes every playing clip.
type Library struct {
	mu    sync.RWMutex
	clips map[string]*Clip
}

func NewLibrary() *Library {
	return &Library{clips: make(map[string]*Clip)}
}

// Add registers c, replacing any clip with the same name.
func (l *Library) Add(c *Clip) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clips[c.Name()] = c
}

func (l *Library) Remove(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.clips[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownClip, name)
	}
	delete(l.clips, name)
	return nil
}

func (l *Library) Get(name string) (*Clip, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.clips[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownClip, name)
	}
	return c, nil
}

func (l *Library) Names() []string {
	l.mu.RLock()
	names := make([]string, 0, len(l.clips))
	for name := range l.clips {
		names = append(names, name)
	}
	l.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clips)
}

func (l *Library) Play(name string) error {
	c, err := l.Get(name)
	if err != nil {
		return err
	}
	c.Play()
	return nil
}

func (l *Library) Stop(name string) error {
	c, err := l.Get(name)
	if err != nil {
		return err
	}
	c.Stop()
	return nil
}

func (l *Library) SetVolume(name string, v float64) error {
	c, err := l.Get(name)
	if err != nil {
		return err
	}
	c.SetVolume(v)
	return nil
}

func (l *Library) SetLooping(name string, looping bool) error {
	c, err := l.Get(name)
	if err != nil {
		return err
	}
	c.SetLooping(looping)
	return nil
}

func (l *Library) StopAll() {
	for _, c := range l.snapshot() {
		c.Stop()
	}
}

func (l *Library) ResetCursors() {
	for _, c := range l.snapshot() {
		c.ResetCursors()
	}
}

// Produce sums every playing clip for consumer.
func (l *Library) Produce(frames int, consumer string) domain.Block {
	out := domain.NewBlock(frames)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, c := range l.clips {
		if !c.Playing() {
			continue
		}
		floats.Add(out, c.Produce(frames, consumer))
	}
	return out
}

// Replace swaps each clip for fn's result, keeping volume, looping, the
// playing flag and every consumer's position scaled to the new rate. Clips
// for which fn fails are left as they were and the errors are returned
// together.
func (l *Library) Replace(fn func(*Clip) (*Clip, error)) error {
	var errs []error
	for _, old := range l.snapshot() {
		next, err := fn(old)
		if err != nil {
			errs = append(errs, fmt.Errorf("clip %s: %w", old.Name(), err))
			continue
		}
		if next != old {
			next.carryFrom(old)
		}
		l.Add(next)
	}
	return errors.Join(errs...)
}

func (l *Library) snapshot() []*Clip {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Clip, 0, len(l.clips))
	for _, c := range l.clips {
		out = append(out, c)
	}
	return out
}
