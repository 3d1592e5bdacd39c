package battery

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// Table maps a voltage range onto an ordered list of level labels,
// lowest level first.
type Table struct {
	Labels []string
	VMin   float64
	VMax   float64
}

// Validate checks that the table can be interpolated.
func (t Table) Validate() error {
	if len(t.Labels) < 2 {
		return fmt.Errorf("level table needs at least 2 labels, got %d", len(t.Labels))
	}
	if !(t.VMin < t.VMax) {
		return fmt.Errorf("level table vmin %.3f must be below vmax %.3f", t.VMin, t.VMax)
	}
	return nil
}

// Translate returns the index of the label for voltage v. The result is
// always a valid index into Labels.
func (t Table) Translate(v float64) int {
	last := len(t.Labels) - 1
	if last <= 0 {
		return 0
	}
	if math.IsNaN(v) {
		return 0
	}
	span := t.VMax - t.VMin
	if span <= 0 {
		if v > t.VMin {
			return last
		}
		return 0
	}
	pos := clamp((v-t.VMin)/span, 0, 1)
	return clamp(int(math.Round(pos*float64(last))), 0, last)
}

// Label returns the label for voltage v.
func (t Table) Label(v float64) string {
	return t.Labels[t.Translate(v)]
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
