package arbiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/pioverlay/internal/clock"
	"github.com/goodtune/pioverlay/internal/metrics"
	"github.com/goodtune/pioverlay/internal/shutdown"
	"github.com/rs/zerolog"
)

// ErrInterruptsUnavailable is returned when edge callbacks cannot be
// registered. The daemon keeps running without GPIO shutdown handling.
var ErrInterruptsUnavailable = errors.New("arbiter: gpio interrupts unavailable")

const (
	DefaultLDODebounce    = 500 * time.Millisecond
	DefaultButtonDebounce = 200 * time.Millisecond
	DefaultHoldTime       = time.Second
)

// Pin is an input line that reports its level and calls a handler on
// every edge. The handler runs on the backend's event goroutine and must
// not block.
type Pin interface {
	Get() (bool, error)
	SetIRQ(handler func()) error
	ClearIRQ() error
	Number() int
}

// Line identifies one of the two watched inputs.
type Line int

const (
	LineLDO Line = iota
	LineButton
)

func (l Line) String() string {
	if l == LineButton {
		return "button"
	}
	return "ldo"
}

// LineConfig configures one watched input. A nil Pin disables the line.
type LineConfig struct {
	Pin       Pin
	ActiveLow bool
	Debounce  time.Duration
}

// Config configures the arbiter.
type Config struct {
	LDO       LineConfig
	Button    LineConfig
	HoldTime  time.Duration
	Clock     clock.Clock
	QueueSize int
}

type isrEvent struct {
	line  Line
	level bool // raw level captured in the callback
	err   error
}

type timerKind int

const (
	timerSettle timerKind = iota
	timerHold
)

type timerEvent struct {
	line Line
	kind timerKind
}

type watch struct {
	line       Line
	pin        Pin
	activeLow  bool
	debounce   time.Duration
	lastActive bool
	lastEvent  time.Time
	settle     *time.Timer
	hold       *time.Timer
}

func (w *watch) active(level bool) bool {
	return level != w.activeLow
}

// Arbiter turns bouncy edges on the LDO and button lines into shutdown
// intents. It never acts on them itself; the poll loop drains Intents().
type Arbiter struct {
	cfg    Config
	clock  clock.Clock
	logger zerolog.Logger

	// Written by pin callbacks; must never block them.
	isrQ   chan isrEvent
	timerQ chan timerEvent
	out    chan shutdown.Intent

	watches []*watch

	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}
	stop    sync.Once

	drops uint32
}

// New creates an arbiter. Lines with a nil Pin are not watched.
func New(cfg Config, logger zerolog.Logger) *Arbiter {
	if cfg.HoldTime <= 0 {
		cfg.HoldTime = DefaultHoldTime
	}
	if cfg.LDO.Debounce <= 0 {
		cfg.LDO.Debounce = DefaultLDODebounce
	}
	if cfg.Button.Debounce <= 0 {
		cfg.Button.Debounce = DefaultButtonDebounce
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	a := &Arbiter{
		cfg:     cfg,
		clock:   clk,
		logger:  logger.With().Str("component", "arbiter").Logger(),
		isrQ:    make(chan isrEvent, cfg.QueueSize),
		timerQ:  make(chan timerEvent, cfg.QueueSize),
		out:     make(chan shutdown.Intent, cfg.QueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if cfg.LDO.Pin != nil {
		a.watches = append(a.watches, &watch{line: LineLDO, pin: cfg.LDO.Pin, activeLow: cfg.LDO.ActiveLow, debounce: cfg.LDO.Debounce})
	}
	if cfg.Button.Pin != nil {
		a.watches = append(a.watches, &watch{line: LineButton, pin: cfg.Button.Pin, activeLow: cfg.Button.ActiveLow, debounce: cfg.Button.Debounce})
	}
	return a
}

// Intents delivers shutdown intents to the poll loop.
func (a *Arbiter) Intents() <-chan shutdown.Intent { return a.out }

// Drops reports callbacks discarded because the queue was full.
func (a *Arbiter) Drops() uint32 { return atomic.LoadUint32(&a.drops) }

// Start snapshots each line, registers the edge callbacks and starts the
// worker goroutine. An LDO line already active raises BeginShutdown at once.
func (a *Arbiter) Start(ctx context.Context) error {
	for i, w := range a.watches {
		// An unreadable line is assumed to be at rest.
		if active, ok := a.read(w); ok {
			w.lastActive = active
		}

		line := w.line
		pin := w.pin
		handler := func() {
			level, err := pin.Get()
			select {
			case a.isrQ <- isrEvent{line: line, level: level, err: err}:
			default:
				atomic.AddUint32(&a.drops, 1)
				metrics.GPIOEventDrops.Inc()
			}
		}
		if err := w.pin.SetIRQ(handler); err != nil {
			for _, prev := range a.watches[:i] {
				_ = prev.pin.ClearIRQ()
			}
			return fmt.Errorf("%w: %s on gpio %d: %v", ErrInterruptsUnavailable, w.line, w.pin.Number(), err)
		}

		a.logger.Info().
			Str("line", w.line.String()).
			Int("gpio", w.pin.Number()).
			Bool("active", w.lastActive).
			Dur("debounce", w.debounce).
			Msg("Watching shutdown line")
	}

	ctx, a.cancel = context.WithCancel(ctx)
	go a.run(ctx)

	for _, w := range a.watches {
		if w.line == LineLDO && w.lastActive {
			a.logger.Warn().Msg("Low-voltage line already active at start")
			a.emit(ctx, shutdown.BeginShutdown(shutdown.ReasonLowVoltage, "ldo"))
		}
	}
	return nil
}

// Stop unregisters the callbacks and waits for the worker to exit.
func (a *Arbiter) Stop() {
	a.stop.Do(func() {
		if a.cancel == nil {
			close(a.done)
			close(a.stopped)
			return
		}
		a.cancel()
		<-a.stopped
	})
}

func (a *Arbiter) run(ctx context.Context) {
	defer close(a.stopped)
	defer func() {
		for _, w := range a.watches {
			_ = w.pin.ClearIRQ()
			if w.settle != nil {
				w.settle.Stop()
			}
			if w.hold != nil {
				w.hold.Stop()
			}
		}
		close(a.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.isrQ:
			a.handleEdge(ctx, ev)
		case ev := <-a.timerQ:
			a.handleTimer(ctx, ev)
		}
	}
}

func (a *Arbiter) watchFor(line Line) *watch {
	for _, w := range a.watches {
		if w.line == line {
			return w
		}
	}
	return nil
}

func (a *Arbiter) handleEdge(ctx context.Context, ev isrEvent) {
	w := a.watchFor(ev.line)
	if w == nil {
		return
	}
	now := a.clock.Now()

	if ev.err != nil {
		a.readFailed(w, ev.err)
		if w.settle == nil {
			w.settle = a.afterFunc(w.debounce, timerEvent{line: w.line, kind: timerSettle})
		}
		return
	}

	// Inside the bounce window: drop the edge but re-read the line once the
	// window has passed, so a short pulse cannot leave us in the wrong state.
	if !w.lastEvent.IsZero() && now.Sub(w.lastEvent) < w.debounce {
		if w.settle == nil {
			w.settle = a.afterFunc(w.debounce-now.Sub(w.lastEvent), timerEvent{line: w.line, kind: timerSettle})
		}
		return
	}
	a.transition(ctx, w, w.active(ev.level), now)
}

func (a *Arbiter) handleTimer(ctx context.Context, ev timerEvent) {
	w := a.watchFor(ev.line)
	if w == nil {
		return
	}
	switch ev.kind {
	case timerSettle:
		w.settle = nil
		if active, ok := a.read(w); ok {
			a.transition(ctx, w, active, a.clock.Now())
		}
	case timerHold:
		w.hold = nil
		active, ok := a.read(w)
		if !ok {
			a.logger.Warn().Msg("Shutdown button could not be re-read, press ignored")
			return
		}
		w.lastActive = active
		if active {
			a.emit(ctx, shutdown.ShutdownNow(shutdown.ReasonButton, "button"))
			return
		}
		a.logger.Info().Dur("hold_time", a.cfg.HoldTime).Msg("Shutdown button pressed, but not long enough to trigger shutdown")
	}
}

// read returns whether w is active. ok is false when the level could not be
// read; callers then leave the line state untouched.
func (a *Arbiter) read(w *watch) (active, ok bool) {
	level, err := w.pin.Get()
	if err != nil {
		a.readFailed(w, err)
		return false, false
	}
	return w.active(level), true
}

func (a *Arbiter) readFailed(w *watch, err error) {
	metrics.GPIOReadErrors.WithLabelValues(w.line.String()).Inc()
	a.logger.Warn().Err(err).Str("line", w.line.String()).Int("gpio", w.pin.Number()).Msg("Failed to read shutdown line")
}

// transition applies a debounced level to w and emits the resulting intent.
func (a *Arbiter) transition(ctx context.Context, w *watch, active bool, now time.Time) {
	if active == w.lastActive {
		return
	}
	w.lastActive = active
	w.lastEvent = now

	edge := "rest"
	if active {
		edge = "active"
	}
	metrics.GPIOEventsTotal.WithLabelValues(w.line.String(), edge).Inc()
	a.logger.Debug().Str("line", w.line.String()).Str("edge", edge).Msg("GPIO edge")

	switch w.line {
	case LineLDO:
		if active {
			a.emit(ctx, shutdown.BeginShutdown(shutdown.ReasonLowVoltage, "ldo"))
		} else {
			a.emit(ctx, shutdown.AbortShutdown(shutdown.ReasonLowVoltage, "ldo"))
		}
	case LineButton:
		if active && w.hold == nil {
			w.hold = a.afterFunc(a.cfg.HoldTime, timerEvent{line: w.line, kind: timerHold})
		}
	}
}

func (a *Arbiter) afterFunc(d time.Duration, ev timerEvent) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case a.timerQ <- ev:
		case <-a.done:
		}
	})
}

func (a *Arbiter) emit(ctx context.Context, in shutdown.Intent) {
	select {
	case a.out <- in:
	case <-ctx.Done():
	}
}
