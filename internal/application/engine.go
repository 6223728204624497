package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"promixer/internal/clip"
	"promixer/internal/domain"
	"promixer/internal/ratelimit"
)

type EngineConfig struct {
	SampleRate              float64
	BlockSize               int
	QueueDepth              int
	MainBus                 string
	DefaultInputFaderDB     float64
	RecordingBus            string
	RecordingDir            string
	FallbackToDefaultOutput bool
	UnderrunWarnAfter       int
	DeviceCheckInterval     time.Duration
	Channels                []domain.ChannelSpec
	Buses                   []string
}

type Option func(*Engine)

func WithResampler(r Resampler) Option {
	return func(e *Engine) { e.resampler = r }
}

func WithDecoder(d ClipDecoder) Option {
	return func(e *Engine) { e.decoder = d }
}

func WithRecordingWriter(w RecordingWriter) Option {
	return func(e *Engine) { e.writer = w }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// Engine owns every channel, bus and device stream. Control calls are
// serialized by ctl; mu guards the registries and is only read-locked from
// audio callbacks. Streams are never started or stopped while mu is held.
type Engine struct {
	cfg       EngineConfig
	backend   DeviceBackend
	resampler Resampler
	decoder   ClipDecoder
	writer    RecordingWriter
	notifier  Notifier
	logger    *slog.Logger
	limiter   *ratelimit.Limiter

	ctl sync.Mutex

	mu         sync.RWMutex
	sampleRate float64
	channels   map[string]*Channel
	order      []string
	buses      map[string]*Bus
	busOrder   []string
	routing    *routingMatrix
	inputs     map[string]*inputBinding
	inputMap   map[string]int
	running    bool

	clock *cycleClock
	clips *clip.Library
	rec   *recorder

	// device problems waiting for the notifier, delivered in order
	noticeMu sync.Mutex
	notices  []string
	flushing bool
	flushWG  sync.WaitGroup
}

type inputBinding struct {
	deviceID int
	stream   Stream
}

func NewEngine(cfg EngineConfig, backend DeviceBackend, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		backend:    backend,
		notifier:   &NoopNotifier{},
		logger:     logger,
		limiter:    ratelimit.New(1, time.Second),
		sampleRate: cfg.SampleRate,
		channels:   make(map[string]*Channel),
		buses:      make(map[string]*Bus),
		routing:    newRoutingMatrix(),
		inputs:     make(map[string]*inputBinding),
		inputMap:   make(map[string]int),
		clock:      newCycleClock(),
		clips:      clip.NewLibrary(),
		rec:        &recorder{},
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, id := range cfg.Buses {
		e.buses[id] = newBus(id, cfg.SampleRate)
		e.busOrder = append(e.busOrder, id)
	}
	for _, spec := range cfg.Channels {
		src, err := e.sourceFor(spec)
		if err != nil {
			return nil, err
		}
		e.channels[spec.ID] = newChannel(spec, src, cfg.SampleRate)
		e.order = append(e.order, spec.ID)
	}

	return e, nil
}

func (c *EngineConfig) normalize() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", c.SampleRate)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, got %d", c.BlockSize)
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 10
	}
	if len(c.Channels) == 0 {
		c.Channels = domain.DefaultChannels()
	}
	if len(c.Buses) == 0 {
		c.Buses = domain.DefaultBuses()
	}
	if c.MainBus == "" {
		c.MainBus = c.Buses[0]
	}
	if c.RecordingBus == "" {
		c.RecordingBus = c.MainBus
	}
	if c.RecordingDir == "" {
		c.RecordingDir = "."
	}

	buses := make(map[string]bool, len(c.Buses))
	for _, id := range c.Buses {
		if id == "" || buses[id] {
			return fmt.Errorf("bus id %q is empty or duplicated", id)
		}
		buses[id] = true
	}
	if !buses[c.MainBus] {
		return fmt.Errorf("main bus %s: %w", c.MainBus, domain.ErrUnknownBus)
	}
	if !buses[c.RecordingBus] {
		return fmt.Errorf("recording bus %s: %w", c.RecordingBus, domain.ErrUnknownBus)
	}

	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.ID == "" || seen[ch.ID] {
			return fmt.Errorf("channel id %q is empty or duplicated", ch.ID)
		}
		seen[ch.ID] = true
		if ch.Kind == domain.KindBusFeed && !buses[ch.Feed] {
			return fmt.Errorf("channel %s feeds from %q: %w", ch.ID, ch.Feed, domain.ErrUnknownBus)
		}
	}
	return nil
}

func (e *Engine) sourceFor(spec domain.ChannelSpec) (Producer, error) {
	switch spec.Kind {
	case domain.KindHardware:
		logger := e.logger.With("channel", spec.ID)
		return NewHardwareSource(e.cfg.QueueDepth, e.clock, e.cfg.UnderrunWarnAfter, logger), nil
	case domain.KindClip:
		return e.clips, nil
	case domain.KindSynthetic:
		return NewToneSource(440, 0.25, e.cfg.SampleRate), nil
	case domain.KindBusFeed:
		return NewBusFeedSource(e.buses[spec.Feed]), nil
	case domain.KindExternal:
		return NewExternalPullSource(nil), nil
	default:
		return nil, fmt.Errorf("channel %s: unknown kind %q", spec.ID, spec.Kind)
	}
}

// Run starts every bound stream and watches for devices that disappear until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("starting mixer engine",
		"sample_rate", e.SampleRate(),
		"block_size", e.cfg.BlockSize,
		"channels", len(e.order),
		"buses", len(e.busOrder),
	)
	if err := e.StartAll(); err != nil {
		e.logger.Warn("some streams failed to start", "error", err)
	}
	defer e.flushWG.Wait()
	defer e.StopAll()

	e.logger.Info("mixer ready")

	interval := e.cfg.DeviceCheckInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.checkDevices()
		}
	}
}

func (e *Engine) SampleRate() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sampleRate
}

func (e *Engine) BlockSize() int { return e.cfg.BlockSize }

func (e *Engine) MainBus() string { return e.cfg.MainBus }

func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Devices lists devices sorted by name.
func (e *Engine) Devices() ([]domain.Device, error) {
	devs, err := e.backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	sort.SliceStable(devs, func(i, j int) bool {
		return strings.ToLower(devs[i].Name) < strings.ToLower(devs[j].Name)
	})
	return devs, nil
}

func (e *Engine) device(id int) (domain.Device, error) {
	devs, err := e.backend.Devices()
	if err != nil {
		return domain.Device{}, fmt.Errorf("listing devices: %w", err)
	}
	for _, d := range devs {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Device{}, fmt.Errorf("%w: id %d", domain.ErrDeviceUnavailable, id)
}

func (e *Engine) Channel(id string) (*Channel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ch, ok := e.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownChannel, id)
	}
	return ch, nil
}

func (e *Engine) Bus(id string) (*Bus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.buses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownBus, id)
	}
	return b, nil
}

func (e *Engine) ChannelIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.order...)
}

func (e *Engine) BusIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.busOrder...)
}

func (e *Engine) SetChannelRouting(channelID, busID string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.channels[channelID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownChannel, channelID)
	}
	if _, ok := e.buses[busID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownBus, busID)
	}
	e.routing.set(channelID, busID, enabled)
	return nil
}

// Routing returns the channel's row of the routing matrix.
func (e *Engine) Routing(channelID string) (map[string]bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.channels[channelID]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownChannel, channelID)
	}
	return e.routing.row(channelID, e.busOrder), nil
}

// SetChannelSource plugs an external producer into a channel. Hardware
// channels are fed by their capture stream and refuse.
func (e *Engine) SetChannelSource(channelID string, p Producer) error {
	ch, err := e.Channel(channelID)
	if err != nil {
		return err
	}
	if ch.Kind() == domain.KindHardware {
		return fmt.Errorf("setting source of %s: %w", channelID, domain.ErrWrongKind)
	}
	if ext, ok := ch.Source().(*ExternalPullSource); ok {
		ext.Set(p)
		return nil
	}
	ch.setSource(NewExternalPullSource(p))
	return nil
}

func (e *Engine) Meters() domain.Meters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m := domain.Meters{
		Channels: make(map[string]domain.Level, len(e.channels)),
		Buses:    make(map[string]domain.Level, len(e.buses)),
		Inputs:   make(map[string]domain.Level),
	}
	for id, ch := range e.channels {
		m.Channels[id] = ch.Level()
		if _, bound := e.inputs[id]; !bound {
			continue
		}
		if hw, ok := ch.Source().(*HardwareSource); ok {
			m.Inputs[id] = hw.CaptureLevel()
		}
	}
	for id, b := range e.buses {
		m.Buses[id] = b.Level()
	}
	return m
}

// report logs a device problem and queues it for the notifier. Delivery runs
// on its own goroutine so a slow notifier never holds up control calls.
func (e *Engine) report(subject string, err error) {
	e.logger.Warn("device problem", "subject", subject, "error", err)
	msg := fmt.Sprintf("%s: no device (%v)", subject, err)

	e.noticeMu.Lock()
	defer e.noticeMu.Unlock()
	e.notices = append(e.notices, msg)
	if !e.flushing {
		e.flushing = true
		e.flushWG.Add(1)
		go e.flushNotices()
	}
}

func (e *Engine) flushNotices() {
	defer e.flushWG.Done()
	for {
		e.noticeMu.Lock()
		if len(e.notices) == 0 {
			e.flushing = false
			e.noticeMu.Unlock()
			return
		}
		msg := e.notices[0]
		e.notices = e.notices[1:]
		e.noticeMu.Unlock()

		if err := e.notifier.Notify(context.Background(), msg); err != nil {
			e.logger.Error("notifying device problem", "error", err)
		}
	}
}

// WaitNotifications blocks until every queued device problem has been handed
// to the notifier.
func (e *Engine) WaitNotifications() {
	e.flushWG.Wait()
}

// logLimited logs at most once per second per key and reports how many lines
// were suppressed in between.
func (e *Engine) logLimited(key, msg string, args ...any) {
	ok, dropped := e.limiter.AllowCounting(key)
	if !ok {
		return
	}
	if dropped > 0 {
		args = append(args, "suppressed", dropped)
	}
	e.logger.Warn(msg, args...)
}
