// Package status runs the poll loop that samples every device, keeps the
// overlay icons in step and feeds shutdown intents to the controller.
package status

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goodtune/pioverlay/internal/adc"
	"github.com/goodtune/pioverlay/internal/battery"
	"github.com/goodtune/pioverlay/internal/clock"
	"github.com/goodtune/pioverlay/internal/metrics"
	"github.com/goodtune/pioverlay/internal/overlay"
	"github.com/goodtune/pioverlay/internal/probe"
	"github.com/goodtune/pioverlay/internal/shutdown"
	"github.com/goodtune/pioverlay/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultInterval is the poll cadence.
const DefaultInterval = 5 * time.Second

const snapshotTimeout = 2 * time.Second

const sourceADC = "adc"

// Display is the overlay slot table. *overlay.Manager implements it.
type Display interface {
	Show(slot overlay.Slot, pl overlay.Placement) error
	Hide(slot overlay.Slot)
	Has(slot overlay.Slot) bool
}

// IconSet resolves labels to asset paths. *overlay.Icons implements it.
type IconSet interface {
	Battery(label string) (string, error)
	Device(label string) (string, error)
	Environment(slot overlay.Slot) (string, error)
}

// ShutdownController applies shutdown intents. *shutdown.Controller
// implements it.
type ShutdownController interface {
	Apply(ctx context.Context, in shutdown.Intent) (bool, error)
	Armed(source string) bool
	State() shutdown.State
}

// GameDetector reports whether a game is in the foreground.
type GameDetector interface {
	Running(ctx context.Context) (bool, error)
}

// FlagsReader reads the firmware throttling flags.
type FlagsReader interface {
	Flags(ctx context.Context) (probe.Flags, error)
}

// SnapshotSaver persists the status after each cycle.
type SnapshotSaver interface {
	Save(ctx context.Context, snap storage.Snapshot) (bool, error)
}

// Device is one probed icon in display order.
type Device struct {
	Name   string
	Slot   overlay.Slot
	Prober probe.Prober
}

// Config holds the poll loop settings.
type Config struct {
	Interval       time.Duration
	ProbeTimeout   time.Duration
	InGameAlpha    int
	BatteryChannel int
}

// Deps are the collaborators of the poll loop. Voltage, Env, Game, Store,
// Intents, Watchdog and Status are optional.
type Deps struct {
	Display    Display
	Icons      IconSet
	Layout     overlay.Layout
	Controller ShutdownController

	Voltage   adc.Reader
	Estimator *battery.Estimator
	Devices   []Device
	Env       FlagsReader
	Game      GameDetector
	Store     SnapshotSaver
	Intents   <-chan shutdown.Intent
	Clock     clock.Clock

	Watchdog func() error
	Status   func(string) error
}

// Poller owns the device state and drives one cycle per tick.
type Poller struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	state   deviceState
	refresh chan struct{}
	last    atomic.Int64 // unix nanos of the last completed cycle
}

// New creates a poller.
func New(cfg Config, deps Deps, logger zerolog.Logger) (*Poller, error) {
	if deps.Display == nil || deps.Icons == nil || deps.Controller == nil {
		return nil, errors.New("status: display, icons and controller are required")
	}
	if deps.Voltage != nil && deps.Estimator == nil {
		return nil, errors.New("status: a voltage source needs an estimator")
	}
	if err := deps.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = probe.DefaultTimeout
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	return &Poller{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With().Str("component", "poller").Logger(),
		state:   newDeviceState(),
		refresh: make(chan struct{}, 1),
	}, nil
}

// Run cycles until ctx is cancelled, applying arbiter intents as they
// arrive between cycles.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	intents := p.deps.Intents
	p.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-intents:
			if !ok {
				intents = nil
				continue
			}
			p.apply(ctx, in)
		case <-ticker.C:
			p.Cycle(ctx)
		}
	}
}

// Refresh makes the next cycle forget the device state and redraw every
// icon.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// LastCycle returns when the last cycle completed, zero before the first.
func (p *Poller) LastCycle() time.Time {
	n := p.last.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Healthy reports whether a cycle completed within three intervals.
func (p *Poller) Healthy() bool {
	last := p.LastCycle()
	return !last.IsZero() && p.deps.Clock.Now().Sub(last) < 3*p.cfg.Interval
}

// Cycle samples every device once and updates the overlays. All Show and
// Hide calls complete before it returns.
func (p *Poller) Cycle(ctx context.Context) {
	start := p.deps.Clock.Now()

	redraw := false
	select {
	case <-p.refresh:
		p.state.reset()
		redraw = true
	default:
	}

	inGame := p.inGame(ctx)
	force := !p.state.known || inGame != p.state.inGame
	alpha := 255
	if inGame {
		alpha = p.cfg.InGameAlpha
	}

	snap := storage.Snapshot{UpdatedAt: start, InGame: inGame}
	ev := p.logger.Info().Bool("in_game", inGame)
	pos := 0

	if p.deps.Voltage != nil {
		pos++
		r := p.sampleBattery(ctx)
		p.render(overlay.SlotBattery, r.Label, p.deps.Icons.Battery, pos, alpha, force, redraw)
		snap.Battery = r.Label
		snap.Voltage = math.Round(r.Voltage*100) / 100
		snap.Charging = r.Charging
		ev = ev.Str("battery", r.Label).Float64("voltage", snap.Voltage).Bool("charging", r.Charging)
	}

	for _, d := range p.deps.Devices {
		pos++
		st, err := probe.Get(ctx, d.Prober, p.cfg.ProbeTimeout)
		if err != nil {
			metrics.ProbeFailures.WithLabelValues(d.Name).Inc()
			p.logger.Debug().Err(err).Str("device", d.Name).Msg("Probe failed")
		}
		p.render(d.Slot, st.Label, p.deps.Icons.Device, pos, alpha, force, redraw)
		ev = ev.Str(d.Name, st.Label)
		if st.Info != "" {
			ev = ev.Str(d.Name+"_info", st.Info)
		}
		switch d.Slot {
		case overlay.SlotWifi:
			snap.Wifi = st.Label
		case overlay.SlotBluetooth:
			snap.Bluetooth = st.Label
		case overlay.SlotAudio:
			snap.Audio = st.Label
		}
	}

	if p.deps.Env != nil {
		snap.Environment = p.renderEnvironment(ctx, pos, alpha, force, redraw)
		ev = ev.Str("environment", snap.Environment)
	}

	p.state.known = true
	p.state.inGame = inGame

	state := p.deps.Controller.State()
	snap.Shutdown = state.String()
	ev.Str("shutdown", snap.Shutdown).Msg("Status")

	end := p.deps.Clock.Now()
	metrics.CycleDuration.Observe(end.Sub(start).Seconds())
	p.last.Store(end.UnixNano())

	p.notify(snap)
	p.save(ctx, snap)
}

// sampleBattery reads one voltage sample and applies the resulting
// shutdown decision.
func (p *Poller) sampleBattery(ctx context.Context) battery.Reading {
	est := p.deps.Estimator

	var (
		r   battery.Reading
		err error
	)
	v, rerr := p.deps.Voltage.Read(p.cfg.BatteryChannel)
	switch {
	case rerr != nil:
		metrics.BatteryReadErrors.Inc()
		p.logger.Warn().Err(rerr).Msg("Failed to read battery voltage")
		r, err = est.Current()
	case math.IsNaN(v) || math.IsInf(v, 0):
		metrics.BatteryReadErrors.Inc()
		p.logger.Warn().Float64("voltage", v).Msg("Discarding non-finite voltage")
		r, err = est.Current()
	default:
		r, err = est.Sample(v, false)
	}
	if err != nil {
		return r
	}

	metrics.BatteryVoltage.Set(r.Voltage)
	table := "discharging"
	if r.Charging {
		table = "charging"
	}
	metrics.BatteryLevelIndex.Reset()
	metrics.BatteryLevelIndex.WithLabelValues(table).Set(float64(r.Index))

	// Only a shutdown this path armed is aborted from here; one held by the
	// LDO line is released by the line alone.
	switch est.Decide(r.Voltage, p.deps.Controller.Armed(sourceADC)) {
	case battery.DecisionBegin:
		p.apply(ctx, shutdown.BeginShutdown(shutdown.ReasonLowVoltage, sourceADC))
	case battery.DecisionAbort:
		p.apply(ctx, shutdown.AbortShutdown(shutdown.ReasonLowVoltage, sourceADC))
	}
	return r
}

// render shows label in slot at position pos when it differs from the
// previous cycle, the game flag changed or the renderer died. Unavailable
// devices are hidden.
func (p *Poller) render(slot overlay.Slot, label string, asset func(string) (string, error), pos, alpha int, force, redraw bool) {
	prev, seen := p.state.label(slot)
	p.state.set(slot, label)

	if label == probe.Unavailable {
		p.deps.Display.Hide(slot)
		return
	}
	changed := !seen || prev != label
	if !changed && !force && p.deps.Display.Has(slot) {
		return
	}

	path, err := asset(label)
	if err != nil {
		if changed {
			p.logger.Warn().Err(err).Str("slot", string(slot)).Str("label", label).Msg("No icon for state")
		}
		p.deps.Display.Hide(slot)
		return
	}

	if redraw {
		p.deps.Display.Hide(slot)
	}
	pl := overlay.Placement{
		Asset: path,
		X:     p.deps.Layout.X(pos),
		Y:     p.deps.Layout.Y(),
		Alpha: alpha,
	}
	if err := p.deps.Display.Show(slot, pl); err != nil {
		p.logger.Error().Err(err).Str("slot", string(slot)).Msg("Failed to show overlay")
	}
}

// renderEnvironment shows one icon per active throttling flag after the
// device icons and hides the rest. It returns the log summary.
func (p *Poller) renderEnvironment(ctx context.Context, pos, alpha int, force, redraw bool) string {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	flags, err := p.deps.Env.Flags(ctx)
	if err != nil {
		metrics.ProbeFailures.WithLabelValues("environment").Inc()
		p.logger.Debug().Err(err).Msg("Environment probe failed")
		for _, slot := range overlay.EnvironmentSlots {
			p.render(slot, probe.Unavailable, nil, 0, alpha, force, redraw)
		}
		return probe.Unavailable
	}

	active := map[overlay.Slot]bool{
		overlay.SlotUnderVoltage: flags.UnderVoltage,
		overlay.SlotFreqCapped:   flags.FreqCapped,
		overlay.SlotThrottled:    flags.Throttled,
	}
	for _, slot := range overlay.EnvironmentSlots {
		if !active[slot] {
			p.state.set(slot, "")
			p.deps.Display.Hide(slot)
			continue
		}
		pos++
		// The label carries the position so a shifted icon is redrawn.
		p.render(slot, "on@"+strconv.Itoa(pos), func(string) (string, error) {
			return p.deps.Icons.Environment(slot)
		}, pos, alpha, force, redraw)
	}
	return flags.Summary()
}

func (p *Poller) inGame(ctx context.Context) bool {
	if p.deps.Game == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	running, err := p.deps.Game.Running(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Game detection failed")
		return false
	}
	return running
}

func (p *Poller) apply(ctx context.Context, in shutdown.Intent) {
	changed, err := p.deps.Controller.Apply(ctx, in)
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("kind", in.Kind.String()).
			Str("reason", in.Reason.String()).
			Str("source", in.Source).
			Msg("Failed to apply shutdown intent")
		return
	}
	if changed {
		p.logger.Info().
			Str("kind", in.Kind.String()).
			Str("source", in.Source).
			Str("state", p.deps.Controller.State().String()).
			Msg("Shutdown intent applied")
	}
}

func (p *Poller) notify(snap storage.Snapshot) {
	if p.deps.Watchdog != nil {
		if err := p.deps.Watchdog(); err != nil {
			p.logger.Debug().Err(err).Msg("Watchdog notification failed")
		}
	}
	if p.deps.Status != nil {
		status := "shutdown " + snap.Shutdown
		if snap.Battery != "" {
			status = fmt.Sprintf("battery %s %.2fV, %s", snap.Battery, snap.Voltage, status)
		}
		if err := p.deps.Status(status); err != nil {
			p.logger.Debug().Err(err).Msg("Status notification failed")
		}
	}
}

func (p *Poller) save(ctx context.Context, snap storage.Snapshot) {
	if p.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	published, err := p.deps.Store.Save(ctx, snap)
	if err != nil {
		metrics.SnapshotPublishErrors.Inc()
		p.logger.Warn().Err(err).Msg("Failed to save status snapshot")
		return
	}
	if published {
		p.logger.Debug().Msg("Status snapshot published")
	}
}
