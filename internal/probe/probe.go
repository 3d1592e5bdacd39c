package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Unavailable is the label reported when a device could not be queried.
const Unavailable = "unavailable"

// DefaultTimeout bounds each probe query.
const DefaultTimeout = 2 * time.Second

// ErrUnavailable wraps every probe failure.
var ErrUnavailable = errors.New("probe: device state unavailable")

// State is one device observation. Label selects the icon; Info is free
// text for the log line.
type State struct {
	Label string
	Info  string
}

// Prober queries one device.
type Prober interface {
	GetState(ctx context.Context) (State, error)
}

// Get runs p under a timeout. On any failure it returns the Unavailable
// label together with an error wrapping ErrUnavailable.
func Get(ctx context.Context, p Prober, timeout time.Duration) (State, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	st, err := p.GetState(ctx)
	if err == nil && st.Label == "" {
		err = errors.New("empty state label")
	}
	if err != nil {
		return State{Label: Unavailable, Info: err.Error()}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return st, nil
}

// Runner runs a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
