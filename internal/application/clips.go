package application

import (
	"fmt"
	"path/filepath"
	"strings"

	"promixer/internal/clip"
)

func (e *Engine) Clips() *clip.Library {
	return e.clips
}

// LoadClip decodes path, converts it to the engine rate once and adds it to
// the clip library. An empty name uses the file name without extension.
func (e *Engine) LoadClip(path, name string) error {
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	c, err := e.decodeClip(path, name, e.SampleRate())
	if err != nil {
		return fmt.Errorf("loading clip %s: %w", name, err)
	}
	e.clips.Add(c)
	e.logger.Info("clip loaded", "name", name, "path", path, "duration", c.Duration())
	return nil
}

func (e *Engine) decodeClip(path, name string, rate float64) (*clip.Clip, error) {
	if e.decoder == nil {
		return nil, fmt.Errorf("no decoder configured")
	}
	data, native, err := e.decoder.Decode(path)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if native != rate {
		if e.resampler == nil {
			return nil, fmt.Errorf("clip is %.0f Hz and no resampler is configured", native)
		}
		data, err = e.resampler.Buffer(data, native, rate)
		if err != nil {
			return nil, err
		}
	}
	return clip.New(name, path, data, rate), nil
}

// reloadClips converts every clip to rate, decoding from the source file
// when possible so quality is not lost twice.
func (e *Engine) reloadClips(rate float64) {
	err := e.clips.Replace(func(old *clip.Clip) (*clip.Clip, error) {
		if old.SampleRate() == rate {
			return old, nil
		}
		if e.decoder != nil && old.Path() != "" {
			if c, err := e.decodeClip(old.Path(), old.Name(), rate); err == nil {
				return c, nil
			}
		}
		if e.resampler == nil {
			return nil, fmt.Errorf("no resampler configured")
		}
		data, err := e.resampler.Buffer(old.Data(), old.SampleRate(), rate)
		if err != nil {
			return nil, err
		}
		return clip.New(old.Name(), old.Path(), data, rate), nil
	})
	if err != nil {
		e.logger.Warn("some clips keep their previous sample rate", "error", err)
	}
}

func (e *Engine) RemoveClip(name string) error {
	return e.clips.Remove(name)
}

func (e *Engine) PlayClip(name string) error {
	return e.clips.Play(name)
}

func (e *Engine) StopClip(name string) error {
	return e.clips.Stop(name)
}

func (e *Engine) SetClipVolume(name string, volume float64) error {
	return e.clips.SetVolume(name, volume)
}

func (e *Engine) SetClipLooping(name string, looping bool) error {
	return e.clips.SetLooping(name, looping)
}
