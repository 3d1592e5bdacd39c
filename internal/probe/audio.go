package probe

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// Audio labels.
const (
	VolumeOff  = "volume_off"
	VolumeMute = "volume_mute"
	VolumeDown = "volume_down"
	VolumeUp   = "volume_up"
)

var (
	amixerPercent = regexp.MustCompile(`\[(\d{1,3})%\]`)
	amixerSwitch  = regexp.MustCompile(`\[(on|off)\]`)
)

// Audio reports mixer volume using amixer.
type Audio struct {
	Control string // mixer control, defaults to Master
	Run     Runner
}

// GetState implements Prober.
func (a *Audio) GetState(ctx context.Context) (State, error) {
	control := a.Control
	if control == "" {
		control = "Master"
	}
	run := a.Run
	if run == nil {
		run = ExecRunner
	}

	out, err := run(ctx, "amixer", "get", control)
	if err != nil {
		return State{}, err
	}
	return parseAmixer(out)
}

func parseAmixer(out []byte) (State, error) {
	m := amixerPercent.FindSubmatch(out)
	if m == nil {
		return State{}, fmt.Errorf("no volume in amixer output")
	}
	pct, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return State{}, fmt.Errorf("invalid volume %q: %w", m[1], err)
	}
	info := fmt.Sprintf("%d%%", pct)

	if sw := amixerSwitch.FindSubmatch(out); sw != nil && string(sw[1]) == "off" {
		return State{Label: VolumeOff, Info: info + " muted"}, nil
	}
	switch {
	case pct == 0:
		return State{Label: VolumeMute, Info: info}, nil
	case pct < 50:
		return State{Label: VolumeDown, Info: info}, nil
	default:
		return State{Label: VolumeUp, Info: info}, nil
	}
}
