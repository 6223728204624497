package application

import (
	"errors"
	"fmt"
	"sort"

	"promixer/internal/domain"
)

// StartInput opens deviceID for capture into a hardware channel. On success
// the channel takes the device's name, is routed to the main bus and gets the
// default input fader. Rebinding stops the previous stream first.
func (e *Engine) StartInput(channelID string, deviceID int) error {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	return e.startInput(channelID, deviceID, true)
}

func (e *Engine) startInput(channelID string, deviceID int, applyDefaults bool) error {
	ch, err := e.Channel(channelID)
	if err != nil {
		return err
	}
	src, ok := ch.Source().(*HardwareSource)
	if !ok {
		return fmt.Errorf("starting input on %s: %w", channelID, domain.ErrWrongKind)
	}

	dev, err := e.device(deviceID)
	if err != nil {
		e.report("channel "+channelID, err)
		return fmt.Errorf("starting input on %s: %w", channelID, err)
	}
	if !dev.CanCapture() {
		err := fmt.Errorf("%w: %s has no inputs", domain.ErrTooManyChannels, dev.Name)
		e.report("channel "+channelID, err)
		return fmt.Errorf("starting input on %s: %w", channelID, err)
	}

	e.stopInput(channelID)

	req := openPlan{device: dev, rate: e.SampleRate(), channels: min(dev.InputChannels, domain.Stereo)}
	stream, cfg, err := e.openWith("channel "+channelID, inputStrategies, req, func(cfg StreamConfig) (Stream, error) {
		return e.backend.OpenInput(cfg, src)
	})
	if err != nil {
		e.report("channel "+channelID, err)
		return fmt.Errorf("opening input %d for %s: %w", deviceID, channelID, err)
	}

	src.Reset()
	if err := stream.Start(); err != nil {
		e.closeStream("channel "+channelID, stream)
		e.report("channel "+channelID, err)
		return fmt.Errorf("starting input stream for %s: %w", channelID, err)
	}

	e.mu.Lock()
	e.inputs[channelID] = &inputBinding{deviceID: deviceID, stream: stream}
	e.inputMap[channelID] = deviceID
	if applyDefaults {
		e.routing.set(channelID, e.cfg.MainBus, true)
	}
	e.mu.Unlock()

	ch.SetName(dev.DisplayName())
	if applyDefaults {
		ch.SetFaderDB(e.cfg.DefaultInputFaderDB)
	}

	e.logger.Info("input started",
		"channel", channelID,
		"device", dev.Name,
		"channels", cfg.Channels,
		"sample_rate", cfg.SampleRate,
	)
	return nil
}

// StopInput closes a channel's capture stream but keeps its device binding.
func (e *Engine) StopInput(channelID string) error {
	if _, err := e.Channel(channelID); err != nil {
		return err
	}
	e.ctl.Lock()
	defer e.ctl.Unlock()
	e.stopInput(channelID)
	return nil
}

// ClearInput stops the capture stream and forgets the binding.
func (e *Engine) ClearInput(channelID string) error {
	if err := e.StopInput(channelID); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.inputMap, channelID)
	e.mu.Unlock()
	return nil
}

func (e *Engine) stopInput(channelID string) {
	e.mu.Lock()
	in, ok := e.inputs[channelID]
	delete(e.inputs, channelID)
	e.mu.Unlock()
	if ok {
		e.closeStream("channel "+channelID, in.stream)
	}
}

// InputDevice returns the device bound to a hardware channel.
func (e *Engine) InputDevice(channelID string) (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.inputMap[channelID]
	return id, ok
}

func (e *Engine) InputRunning(channelID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.inputs[channelID]
	return ok
}

// SetBusDevice binds busID to an output device, restarting the bus if it was
// running.
func (e *Engine) SetBusDevice(busID string, deviceID int) error {
	b, err := e.Bus(busID)
	if err != nil {
		return err
	}
	dev, err := e.device(deviceID)
	if err != nil {
		return fmt.Errorf("binding bus %s: %w", busID, err)
	}
	if !dev.CanPlay() {
		return fmt.Errorf("binding bus %s: %w: %s has no outputs", busID, domain.ErrTooManyChannels, dev.Name)
	}

	e.ctl.Lock()
	defer e.ctl.Unlock()

	running := b.Running()
	if running {
		e.stopOutput(b)
	}
	b.bind(&deviceID)
	if running {
		return e.startOutput(busID)
	}
	return nil
}

func (e *Engine) ClearBusDevice(busID string) error {
	b, err := e.Bus(busID)
	if err != nil {
		return err
	}
	e.ctl.Lock()
	defer e.ctl.Unlock()
	e.stopOutput(b)
	b.bind(nil)
	return nil
}

// StartOutput opens the bus's device stream. It does nothing when the bus
// is already running.
func (e *Engine) StartOutput(busID string) error {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	return e.startOutput(busID)
}

func (e *Engine) startOutput(busID string) error {
	b, err := e.Bus(busID)
	if err != nil {
		return err
	}
	if b.Running() {
		return nil
	}
	deviceID, ok := b.Device()
	if !ok {
		return fmt.Errorf("starting bus %s: %w", busID, domain.ErrNoDevice)
	}
	dev, err := e.device(deviceID)
	if err != nil {
		if !e.cfg.FallbackToDefaultOutput {
			e.report("bus "+busID, err)
			return fmt.Errorf("starting bus %s: %w", busID, err)
		}
		dev = domain.Device{ID: deviceID, Name: fmt.Sprintf("device %d", deviceID), OutputChannels: domain.Stereo}
	}

	rate := e.SampleRate()
	req := openPlan{device: dev, rate: rate, channels: min(dev.OutputChannels, domain.Stereo)}
	handler := &busRenderer{e: e, bus: b}
	stream, cfg, err := e.openWith("bus "+busID, outputStrategies, req, func(cfg StreamConfig) (Stream, error) {
		return e.backend.OpenOutput(cfg, handler)
	})
	if err != nil {
		e.report("bus "+busID, err)
		return fmt.Errorf("opening output %d for bus %s: %w", deviceID, busID, err)
	}

	var resampler BlockResampler
	if cfg.SampleRate != rate {
		if e.anyOutputRunning() {
			resampler, err = e.newBlockResampler(rate, cfg.SampleRate)
			if err != nil {
				e.closeStream("bus "+busID, stream)
				e.report("bus "+busID, err)
				return fmt.Errorf("starting bus %s: %w", busID, err)
			}
		} else {
			e.renegotiate(cfg.SampleRate)
		}
	}

	b.attach(stream, cfg, resampler)
	// a bus that led the clock through Mix has no stream to keep ticking it
	if leader := e.clock.Leader(); leader != "" {
		if lb, err := e.Bus(leader); err == nil && !lb.Running() {
			e.clock.release(leader)
		}
	}
	if err := stream.Start(); err != nil {
		b.detach()
		e.closeStream("bus "+busID, stream)
		e.report("bus "+busID, err)
		return fmt.Errorf("starting output stream for bus %s: %w", busID, err)
	}

	e.logger.Info("output started",
		"bus", busID,
		"device", dev.Name,
		"sample_rate", cfg.SampleRate,
		"resampling", resampler != nil,
	)
	return nil
}

func (e *Engine) StopOutput(busID string) error {
	b, err := e.Bus(busID)
	if err != nil {
		return err
	}
	e.ctl.Lock()
	defer e.ctl.Unlock()
	e.stopOutput(b)
	return nil
}

func (e *Engine) stopOutput(b *Bus) {
	s := b.detach()
	e.clock.release(b.id)
	if s != nil {
		e.closeStream("bus "+b.id, s)
	}
}

func (e *Engine) newBlockResampler(from, to float64) (BlockResampler, error) {
	if e.resampler == nil {
		return nil, fmt.Errorf("%w: no resampler for %.0f Hz to %.0f Hz", domain.ErrResampling, from, to)
	}
	return e.resampler.NewStream(from, to)
}

func (e *Engine) anyOutputRunning() bool {
	for _, id := range e.BusIDs() {
		if b, _ := e.Bus(id); b.Running() {
			return true
		}
	}
	return false
}

// renegotiate makes rate the engine-wide processing rate. The first output
// to open decides it; clips are converted and open inputs reopened.
func (e *Engine) renegotiate(rate float64) {
	old := e.SampleRate()
	if old == rate {
		return
	}
	e.logger.Warn("engine sample rate renegotiated", "from", old, "to", rate)

	e.mu.Lock()
	e.sampleRate = rate
	for _, ch := range e.channels {
		ch.setSampleRate(rate)
	}
	for _, b := range e.buses {
		b.setEngineRate(rate)
	}
	bound := make(map[string]int, len(e.inputs))
	for id, in := range e.inputs {
		bound[id] = in.deviceID
	}
	e.mu.Unlock()

	e.splitRecording(rate)
	e.reloadClips(rate)

	for _, id := range sortedKeys(bound) {
		if err := e.startInput(id, bound[id], false); err != nil {
			e.logger.Error("reopening input at new rate", "channel", id, "error", err)
		}
	}
}

// StartAll opens every bound output, then every bound input. A running
// engine is stopped first. Failures are collected and do not stop the rest.
func (e *Engine) StartAll() error {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	if e.Running() {
		e.stopAll()
	}

	var errs []error
	for _, id := range e.BusIDs() {
		b, _ := e.Bus(id)
		if _, ok := b.Device(); !ok {
			continue
		}
		if err := e.startOutput(id); err != nil {
			errs = append(errs, err)
		}
	}

	e.mu.RLock()
	bound := make(map[string]int, len(e.inputMap))
	for id, dev := range e.inputMap {
		bound[id] = dev
	}
	e.mu.RUnlock()
	for _, id := range sortedKeys(bound) {
		if err := e.startInput(id, bound[id], false); err != nil {
			errs = append(errs, err)
		}
	}

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	return errors.Join(errs...)
}

// StopAll closes every stream, ignoring devices that fail to close, and
// rewinds every clip cursor.
func (e *Engine) StopAll() {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	e.stopAll()
}

func (e *Engine) stopAll() {
	e.mu.Lock()
	inputs := e.inputs
	e.inputs = make(map[string]*inputBinding)
	e.running = false
	buses := make([]*Bus, 0, len(e.buses))
	for _, id := range e.busOrder {
		buses = append(buses, e.buses[id])
	}
	e.mu.Unlock()

	for _, b := range buses {
		e.stopOutput(b)
	}
	for _, id := range sortedKeys(inputs) {
		e.closeStream("channel "+id, inputs[id].stream)
	}
	for _, id := range e.ChannelIDs() {
		ch, _ := e.Channel(id)
		if hw, ok := ch.Source().(*HardwareSource); ok {
			hw.Reset()
		}
	}
	e.clock.reset()
	e.clips.ResetCursors()
	e.logger.Info("all streams stopped")
}

func (e *Engine) closeStream(subject string, s Stream) {
	if err := s.Stop(); err != nil {
		e.logger.Debug("stopping stream", "subject", subject, "error", err)
	}
	if err := s.Close(); err != nil {
		e.logger.Debug("closing stream", "subject", subject, "error", err)
	}
}

// checkDevices stops streams whose device has vanished.
func (e *Engine) checkDevices() {
	devs, err := e.backend.Devices()
	if err != nil {
		e.logger.Warn("listing devices", "error", err)
		return
	}
	present := make(map[int]bool, len(devs))
	for _, d := range devs {
		present[d.ID] = true
	}

	e.ctl.Lock()
	defer e.ctl.Unlock()

	for _, id := range e.BusIDs() {
		b, _ := e.Bus(id)
		dev, ok := b.Device()
		if ok && b.Running() && !present[dev] {
			e.stopOutput(b)
			e.report("bus "+id, fmt.Errorf("%w: id %d", domain.ErrDeviceUnavailable, dev))
		}
	}

	e.mu.RLock()
	var gone []string
	for id, in := range e.inputs {
		if !present[in.deviceID] {
			gone = append(gone, id)
		}
	}
	e.mu.RUnlock()
	sort.Strings(gone)
	for _, id := range gone {
		e.stopInput(id)
		e.report("channel "+id, domain.ErrDeviceUnavailable)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
