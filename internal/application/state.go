package application

import (
	"errors"
	"fmt"

	"promixer/internal/domain"
)

// State snapshots everything a persistence layer must keep.
func (e *Engine) State() domain.State {
	e.mu.RLock()
	s := domain.State{
		SampleRate: e.sampleRate,
		Channels:   make(map[string]domain.ChannelState, len(e.channels)),
		Buses:      make(map[string]domain.BusState, len(e.buses)),
		Clips:      make(map[string]domain.ClipState),
	}
	for _, id := range e.order {
		cs := e.channels[id].state()
		cs.Routing = e.routing.row(id, e.busOrder)
		if dev, ok := e.inputMap[id]; ok {
			cs.InputDevice = &dev
		}
		s.Channels[id] = cs
	}
	for _, id := range e.busOrder {
		s.Buses[id] = e.buses[id].state()
	}
	e.mu.RUnlock()

	for _, name := range e.clips.Names() {
		c, err := e.clips.Get(name)
		if err != nil {
			continue
		}
		s.Clips[name] = domain.ClipState{Path: c.Path(), Volume: c.Volume(), Looping: c.Looping()}
	}
	return s
}

// Restore applies a snapshot. Applying the same snapshot twice leaves the
// engine unchanged. Device bindings are recorded but streams are only opened
// by StartAll, except that a running bus whose device changed is restarted.
// Unknown ids and clips that fail to load are reported together; everything
// else is still applied.
func (e *Engine) Restore(s domain.State) error {
	var errs []error

	for _, id := range sortedKeys(s.Channels) {
		cs := s.Channels[id]
		ch, err := e.Channel(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ch.restore(cs)
		for busID, on := range cs.Routing {
			if err := e.SetChannelRouting(id, busID, on); err != nil {
				errs = append(errs, fmt.Errorf("channel %s: %w", id, err))
			}
		}
		e.mu.Lock()
		if cs.InputDevice != nil && ch.Kind() == domain.KindHardware {
			e.inputMap[id] = *cs.InputDevice
		} else {
			delete(e.inputMap, id)
		}
		e.mu.Unlock()
	}

	for _, id := range sortedKeys(s.Buses) {
		bs := s.Buses[id]
		b, err := e.Bus(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.SetFaderDB(bs.FaderDB)
		b.SetMute(bs.Mute)
		if err := e.restoreBinding(b, bs.Device); err != nil {
			errs = append(errs, err)
		}
	}

	for _, name := range sortedKeys(s.Clips) {
		cs := s.Clips[name]
		if _, err := e.clips.Get(name); err != nil {
			if err := e.LoadClip(cs.Path, name); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if err := e.clips.SetVolume(name, cs.Volume); err != nil {
			errs = append(errs, err)
		}
		if err := e.clips.SetLooping(name, cs.Looping); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (e *Engine) restoreBinding(b *Bus, device *int) error {
	current, bound := b.Device()
	switch {
	case device == nil && !bound:
		return nil
	case device == nil:
		return e.ClearBusDevice(b.id)
	case bound && current == *device:
		return nil
	case b.Running():
		return e.SetBusDevice(b.id, *device)
	default:
		id := *device
		b.bind(&id)
		return nil
	}
}
