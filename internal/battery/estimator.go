package battery

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData is returned when no voltage sample has been recorded yet.
var ErrInsufficientData = errors.New("battery: no voltage samples")

// Decision is the shutdown action implied by the smoothed voltage.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionBegin
	DecisionAbort
)

func (d Decision) String() string {
	switch d {
	case DecisionBegin:
		return "begin"
	case DecisionAbort:
		return "abort"
	default:
		return "none"
	}
}

// Config holds the voltage thresholds and level tables.
type Config struct {
	VMinDischarging   float64
	VMaxDischarging   float64
	VMinCharging      float64
	VMaxCharging      float64
	LevelsDischarging []string
	LevelsCharging    []string
	HistorySize       int
	// ShutdownEnabled turns on the low-voltage shutdown decision.
	ShutdownEnabled bool
}

// Reading is the estimator output for one cycle.
type Reading struct {
	Label    string
	Voltage  float64 // smoothed
	Index    int     // index into the selected table
	Charging bool    // charging table selected
	Samples  int
}

// Estimator turns raw voltage samples into battery levels. It is not safe
// for concurrent use; the poll loop is its only caller.
type Estimator struct {
	cfg         Config
	discharging Table
	charging    Table
	history     *History
}

// NewEstimator validates cfg and builds an estimator.
func NewEstimator(cfg Config) (*Estimator, error) {
	e := &Estimator{
		cfg: cfg,
		discharging: Table{
			Labels: append([]string(nil), cfg.LevelsDischarging...),
			VMin:   cfg.VMinDischarging,
			VMax:   cfg.VMaxDischarging,
		},
		charging: Table{
			Labels: append([]string(nil), cfg.LevelsCharging...),
			VMin:   cfg.VMinCharging,
			VMax:   cfg.VMaxCharging,
		},
		history: NewHistory(cfg.HistorySize),
	}
	if err := e.discharging.Validate(); err != nil {
		return nil, fmt.Errorf("discharging: %w", err)
	}
	if err := e.charging.Validate(); err != nil {
		return nil, fmt.Errorf("charging: %w", err)
	}
	return e, nil
}

// Sample records voltage and returns the resulting level. nowCharging forces
// the charging table for sources that can sense a charger directly; all other
// sources pass false and rely on the voltage heuristic.
// Non-finite voltages are discarded and the previous history is reported.
func (e *Estimator) Sample(voltage float64, nowCharging bool) (Reading, error) {
	if !math.IsNaN(voltage) && !math.IsInf(voltage, 0) {
		e.history.Add(voltage)
	}
	return e.read(nowCharging)
}

// Current reports the level from the samples already held.
func (e *Estimator) Current() (Reading, error) {
	return e.read(false)
}

// WorstLabel is reported when there is no data.
func (e *Estimator) WorstLabel() string {
	return e.discharging.Labels[0]
}

func (e *Estimator) read(nowCharging bool) (Reading, error) {
	smoothed, ok := e.history.Median()
	if !ok {
		return Reading{Label: e.WorstLabel()}, ErrInsufficientData
	}

	// A voltage above the discharging ceiling is taken to mean a charger is
	// connected. There is no sense line behind this.
	charging := nowCharging || smoothed > e.cfg.VMaxDischarging
	table := e.discharging
	if charging {
		table = e.charging
	}
	idx := table.Translate(smoothed)
	return Reading{
		Label:    table.Labels[idx],
		Voltage:  smoothed,
		Index:    idx,
		Charging: charging,
		Samples:  e.history.Len(),
	}, nil
}

// Decide returns the shutdown decision for a smoothed voltage given whether a
// low-voltage shutdown raised from these readings is already pending.
// Decisions are level based and are re-evaluated every cycle.
func (e *Estimator) Decide(smoothed float64, lowVoltagePending bool) Decision {
	if !e.cfg.ShutdownEnabled {
		return DecisionNone
	}
	if lowVoltagePending {
		if smoothed > e.cfg.VMinCharging {
			return DecisionAbort
		}
		return DecisionNone
	}
	if smoothed < e.cfg.VMinDischarging {
		return DecisionBegin
	}
	return DecisionNone
}
