package shutdown

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCommand is the argv prefix used to drive shutdown(8).
var DefaultCommand = []string{"sudo", "shutdown"}

// runFunc runs one command to completion and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandExecutor drives shutdown(8): "-P +N" to schedule, "-c" to cancel and
// "-P now" to power off.
type CommandExecutor struct {
	prefix []string
	run    runFunc
	logger zerolog.Logger
}

// NewCommandExecutor builds an executor around an argv prefix such as
// ["sudo", "shutdown"]. An empty prefix uses DefaultCommand.
func NewCommandExecutor(prefix []string, logger zerolog.Logger) *CommandExecutor {
	if len(prefix) == 0 {
		prefix = DefaultCommand
	}
	return &CommandExecutor{
		prefix: append([]string(nil), prefix...),
		run:    runCommand,
		logger: logger.With().Str("component", "shutdown-exec").Logger(),
	}
}

// Schedule requests a power-off after delay, rounded up to whole minutes.
func (e *CommandExecutor) Schedule(ctx context.Context, delay time.Duration) error {
	when := "now"
	if minutes := int(math.Ceil(delay.Minutes())); minutes > 0 {
		when = fmt.Sprintf("+%d", minutes)
	}
	return e.invoke(ctx, "-P", when)
}

// Cancel cancels a scheduled power-off.
func (e *CommandExecutor) Cancel(ctx context.Context) error {
	return e.invoke(ctx, "-c")
}

// PowerOff powers off immediately.
func (e *CommandExecutor) PowerOff(ctx context.Context) error {
	return e.invoke(ctx, "-P", "now")
}

func (e *CommandExecutor) invoke(ctx context.Context, args ...string) error {
	argv := append(append([]string(nil), e.prefix[1:]...), args...)
	e.logger.Debug().Str("cmd", e.prefix[0]).Strs("args", argv).Msg("Running shutdown command")

	out, err := e.run(ctx, e.prefix[0], argv...)
	if err != nil {
		return fmt.Errorf("%s %s: %w (%s)", e.prefix[0], strings.Join(argv, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
