package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/pioverlay/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	// DefaultDelay is the countdown before a low-voltage power-off.
	DefaultDelay = 60 * time.Second
	// DefaultExecTimeout bounds each executor call.
	DefaultExecTimeout = 10 * time.Second
)

// Executor performs the OS side of a shutdown.
type Executor interface {
	Schedule(ctx context.Context, delay time.Duration) error
	Cancel(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

// Warner shows and removes the on-screen shutdown warning.
type Warner interface {
	ShowWarning() error
	HideWarning() error
}

// Controller owns the shutdown state. All transitions happen under one
// mutex, so intents from the GPIO arbiter and the battery estimator can
// never interleave.
type Controller struct {
	mu     sync.Mutex
	state  State
	armed  map[string]bool // sources holding PendingLowVoltage
	exec   Executor
	warner Warner
	delay  time.Duration
	logger zerolog.Logger

	execTimeout time.Duration
}

// NewController creates a controller in the Idle state. warner may be nil.
func NewController(exec Executor, warner Warner, delay time.Duration, logger zerolog.Logger) *Controller {
	if delay <= 0 {
		delay = DefaultDelay
	}
	metrics.ShutdownState.Set(float64(StateIdle))
	return &Controller{
		armed:       make(map[string]bool),
		exec:        exec,
		warner:      warner,
		delay:       delay,
		logger:      logger.With().Str("component", "shutdown").Logger(),
		execTimeout: DefaultExecTimeout,
	}
}

// SetExecTimeout bounds each Schedule, Cancel and PowerOff call. Zero or
// negative restores DefaultExecTimeout.
func (c *Controller) SetExecTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultExecTimeout
	}
	c.mu.Lock()
	c.execTimeout = d
	c.mu.Unlock()
}

// State returns the current shutdown state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Armed reports whether source currently holds the low-voltage shutdown.
func (c *Controller) Armed(source string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StatePendingLowVoltage && c.armed[source]
}

// Apply dispatches an intent. changed is false when the intent was a no-op
// in the current state.
func (c *Controller) Apply(ctx context.Context, in Intent) (changed bool, err error) {
	switch in.Kind {
	case KindBegin:
		changed, err = c.Begin(ctx, in.Reason, in.Source)
	case KindAbort:
		changed, err = c.Abort(ctx, in.Reason, in.Source)
	case KindNow:
		changed, err = c.Now(ctx, in.Reason)
	default:
		return false, fmt.Errorf("unknown intent kind %d", in.Kind)
	}
	if changed {
		metrics.ShutdownIntentsTotal.WithLabelValues(in.Kind.String(), in.Reason.String(), in.Source).Inc()
	}
	return changed, err
}

// Begin arms the delayed shutdown on behalf of source. Only the first Begin
// from Idle schedules it; a Begin while pending adds source to the holders.
func (c *Controller) Begin(ctx context.Context, reason Reason, source string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StatePendingButton:
		return false, nil
	case StatePendingLowVoltage:
		if !c.armed[source] {
			c.armed[source] = true
			c.logger.Debug().Str("source", source).Msg("Low-voltage shutdown also held by source")
		}
		return false, nil
	}

	c.logger.Warn().
		Str("reason", reason.String()).
		Str("source", source).
		Dur("delay", c.delay).
		Msg("Low battery, initiating shutdown")

	ctx, cancel := context.WithTimeout(ctx, c.execTimeout)
	defer cancel()
	if err := c.exec.Schedule(ctx, c.delay); err != nil {
		// Stay Idle so the next cycle can retry.
		return false, fmt.Errorf("failed to schedule shutdown: %w", err)
	}
	c.setState(StatePendingLowVoltage)
	c.armed[source] = true

	if c.warner != nil {
		if err := c.warner.ShowWarning(); err != nil {
			c.logger.Error().Err(err).Msg("Failed to show shutdown warning")
		}
	}
	return true, nil
}

// Abort releases source's hold on a pending low-voltage shutdown and
// cancels it once no source holds it. A source that never armed the
// shutdown cannot abort it. Button shutdowns cannot be aborted.
func (c *Controller) Abort(ctx context.Context, reason Reason, source string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePendingLowVoltage || reason != ReasonLowVoltage || !c.armed[source] {
		return false, nil
	}
	if len(c.armed) > 1 {
		delete(c.armed, source)
		c.logger.Info().
			Str("source", source).
			Strs("held_by", c.holders()).
			Msg("Source recovered, shutdown still pending")
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.execTimeout)
	defer cancel()
	if err := c.exec.Cancel(ctx); err != nil {
		return false, fmt.Errorf("failed to cancel shutdown: %w", err)
	}
	delete(c.armed, source)
	c.setState(StateIdle)

	if c.warner != nil {
		if err := c.warner.HideWarning(); err != nil {
			c.logger.Error().Err(err).Msg("Failed to remove shutdown warning")
		}
	}

	c.logger.Info().Str("reason", reason.String()).Msg("Power restored, shutdown aborted")
	return true, nil
}

// Now powers off immediately. It supersedes a pending low-voltage shutdown.
func (c *Controller) Now(ctx context.Context, reason Reason) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StatePendingButton {
		return false, nil
	}

	c.logger.Warn().Str("reason", reason.String()).Msg("Shutdown button held, shutting down now")

	prev := c.state
	c.setState(StatePendingButton)
	ctx, cancel := context.WithTimeout(ctx, c.execTimeout)
	defer cancel()
	if err := c.exec.PowerOff(ctx); err != nil {
		c.setState(prev)
		return false, fmt.Errorf("failed to power off: %w", err)
	}
	clear(c.armed)
	return true, nil
}

func (c *Controller) holders() []string {
	out := make([]string, 0, len(c.armed))
	for s := range c.armed {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *Controller) setState(s State) {
	c.state = s
	metrics.ShutdownState.Set(float64(s))
}
