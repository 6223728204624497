package application

import (
	"errors"
	"fmt"

	"promixer/internal/domain"
)

// openPlan is one concrete attempt at opening a device stream.
type openPlan struct {
	device   domain.Device
	rate     float64
	channels int
}

// openStrategy turns the original request and the previous attempt's error
// into the next attempt, or declines.
type openStrategy struct {
	name string
	plan func(e *Engine, req openPlan, last error) (openPlan, bool)
}

var outputStrategies = []openStrategy{
	{name: "requested rate", plan: asRequested},
	{name: "native rate", plan: nativeRate},
	{name: "default device", plan: defaultOutput},
}

var inputStrategies = []openStrategy{
	{name: "requested rate", plan: asRequested},
	{name: "mono", plan: monoInput},
}

func asRequested(_ *Engine, req openPlan, _ error) (openPlan, bool) {
	return req, true
}

func nativeRate(_ *Engine, req openPlan, last error) (openPlan, bool) {
	if !errors.Is(last, domain.ErrSampleRateMismatch) {
		return req, false
	}
	if req.device.SampleRate <= 0 || req.device.SampleRate == req.rate {
		return req, false
	}
	req.rate = req.device.SampleRate
	return req, true
}

func defaultOutput(e *Engine, req openPlan, last error) (openPlan, bool) {
	if !e.cfg.FallbackToDefaultOutput || last == nil {
		return req, false
	}
	def, err := e.backend.DefaultOutput()
	if err != nil || def.ID == req.device.ID || !def.CanPlay() {
		return req, false
	}
	plan := openPlan{device: def, rate: req.rate, channels: min(def.OutputChannels, domain.Stereo)}
	if def.SampleRate > 0 {
		plan.rate = def.SampleRate
	}
	return plan, true
}

func monoInput(_ *Engine, req openPlan, last error) (openPlan, bool) {
	if !errors.Is(last, domain.ErrTooManyChannels) || req.channels <= 1 {
		return req, false
	}
	req.channels = 1
	return req, true
}

// openWith walks strategies in order and returns the first stream that opens.
// The joined error of every failed attempt is returned when none succeeds.
func (e *Engine) openWith(
	subject string,
	strategies []openStrategy,
	req openPlan,
	open func(StreamConfig) (Stream, error),
) (Stream, StreamConfig, error) {
	var (
		errs []error
		last error
	)
	for _, s := range strategies {
		plan, ok := s.plan(e, req, last)
		if !ok {
			continue
		}
		cfg := StreamConfig{
			DeviceID:        plan.device.ID,
			Channels:        plan.channels,
			SampleRate:      plan.rate,
			FramesPerBuffer: e.cfg.BlockSize,
		}
		stream, err := open(cfg)
		if err == nil {
			if s.name != strategies[0].name {
				e.logger.Info("opened stream with fallback",
					"subject", subject,
					"strategy", s.name,
					"device", plan.device.Name,
					"sample_rate", plan.rate,
				)
			}
			return stream, cfg, nil
		}
		e.logger.Debug("open attempt failed",
			"subject", subject,
			"strategy", s.name,
			"device", plan.device.ID,
			"sample_rate", plan.rate,
			"error", err,
		)
		last = err
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	if len(errs) == 0 {
		return nil, StreamConfig{}, fmt.Errorf("%s: %w", subject, domain.ErrDeviceUnavailable)
	}
	return nil, StreamConfig{}, errors.Join(errs...)
}
