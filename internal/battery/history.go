package battery

import (
	"sort"

	"github.com/asecurityteam/rolling"
)

// DefaultHistorySize is the number of samples the median is taken over.
const DefaultHistorySize = 5

// History keeps the last N voltage samples in insertion order.
type History struct {
	window *rolling.PointPolicy
	size   int
	count  int
}

// NewHistory creates a ring of the given capacity.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		window: rolling.NewPointPolicy(rolling.NewWindow(size)),
		size:   size,
	}
}

// Add appends v, evicting the oldest sample once the ring is full.
func (h *History) Add(v float64) {
	h.window.Append(v)
	if h.count < h.size {
		h.count++
	}
}

// Len returns the number of samples held.
func (h *History) Len() int { return h.count }

// Median returns the median of the held samples. ok is false when empty.
func (h *History) Median() (median float64, ok bool) {
	if h.count == 0 {
		return 0, false
	}
	n := h.count
	median = h.window.Reduce(func(w rolling.Window) float64 {
		// Buckets fill from index 0, so before the first wrap only the
		// first n hold real samples.
		vals := make([]float64, 0, n)
		for _, bucket := range w[:n] {
			vals = append(vals, bucket...)
		}
		return medianOf(vals)
	})
	return median, true
}

func medianOf(vals []float64) float64 {
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}
