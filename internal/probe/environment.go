package probe

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// Throttling bits reported by the firmware.
const (
	flagUnderVoltage = 0x1
	flagFreqCapped   = 0x2
	flagThrottled    = 0x4
)

// EnvNormal is logged when no throttling flag is set.
const EnvNormal = "normal"

var throttledRe = regexp.MustCompile(`throttled=(0x[0-9a-fA-F]+)`)

// Flags are the currently active throttling conditions.
type Flags struct {
	UnderVoltage bool
	FreqCapped   bool
	Throttled    bool
}

// Active lists the active flag names in display order.
func (f Flags) Active() []string {
	var out []string
	if f.UnderVoltage {
		out = append(out, "under-voltage")
	}
	if f.FreqCapped {
		out = append(out, "freq-capped")
	}
	if f.Throttled {
		out = append(out, "throttled")
	}
	return out
}

// Summary returns the last active flag name, or EnvNormal.
func (f Flags) Summary() string {
	active := f.Active()
	if len(active) == 0 {
		return EnvNormal
	}
	return active[len(active)-1]
}

// Environment reads throttling flags with vcgencmd.
type Environment struct {
	Run Runner
}

// Flags queries the firmware.
func (e *Environment) Flags(ctx context.Context) (Flags, error) {
	run := e.Run
	if run == nil {
		run = ExecRunner
	}
	out, err := run(ctx, "vcgencmd", "get_throttled")
	if err != nil {
		return Flags{}, err
	}
	return parseThrottled(out)
}

func parseThrottled(out []byte) (Flags, error) {
	m := throttledRe.FindSubmatch(out)
	if m == nil {
		return Flags{}, fmt.Errorf("unexpected vcgencmd output %q", out)
	}
	v, err := strconv.ParseUint(string(m[1][2:]), 16, 32)
	if err != nil {
		return Flags{}, fmt.Errorf("invalid throttled value %q: %w", m[1], err)
	}
	return Flags{
		UnderVoltage: v&flagUnderVoltage != 0,
		FreqCapped:   v&flagFreqCapped != 0,
		Throttled:    v&flagThrottled != 0,
	}, nil
}
