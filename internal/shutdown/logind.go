package shutdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/login1"
	"github.com/rs/zerolog"
)

// powerOffer is the subset of the logind connection the executor uses.
type powerOffer interface {
	PowerOff(askForAuth bool)
}

// LogindExecutor powers off through systemd-logind over D-Bus. The delayed
// shutdown is a local timer, so cancelling needs no privileges.
type LogindExecutor struct {
	mu     sync.Mutex
	conn   powerOffer
	closer func()
	timer  *time.Timer
	logger zerolog.Logger
}

// NewLogindExecutor connects to logind on the system bus.
func NewLogindExecutor(logger zerolog.Logger) (*LogindExecutor, error) {
	conn, err := login1.New()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to logind: %w", err)
	}
	e := newLogindExecutor(conn, logger)
	e.closer = conn.Close
	return e, nil
}

func newLogindExecutor(conn powerOffer, logger zerolog.Logger) *LogindExecutor {
	return &LogindExecutor{
		conn:   conn,
		logger: logger.With().Str("component", "shutdown-logind").Logger(),
	}
}

// Schedule starts the countdown, replacing any earlier one.
func (e *LogindExecutor) Schedule(_ context.Context, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(delay, func() {
		e.logger.Warn().Msg("Shutdown countdown elapsed, powering off")
		e.conn.PowerOff(false)
	})
	return nil
}

// Cancel stops the countdown. It is a no-op when none is running.
func (e *LogindExecutor) Cancel(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	return nil
}

// PowerOff powers off immediately.
func (e *LogindExecutor) PowerOff(_ context.Context) error {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()

	e.conn.PowerOff(false)
	return nil
}

// Close releases the D-Bus connection.
func (e *LogindExecutor) Close() {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()

	if e.closer != nil {
		e.closer()
	}
}
