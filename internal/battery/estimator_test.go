package battery

import (
	"errors"
	"math"
	"testing"
)

func testConfig() Config {
	return Config{
		VMinDischarging:   3.3,
		VMaxDischarging:   4.1,
		VMinCharging:      3.6,
		VMaxCharging:      4.3,
		LevelsDischarging: []string{"alert_red", "alert", "20", "30", "50", "60", "80", "90", "full"},
		LevelsCharging:    []string{"charging_20", "charging_30", "charging_50", "charging_60", "charging_80", "charging_90", "charging_full"},
		HistorySize:       5,
		ShutdownEnabled:   true,
	}
}

func newTestEstimator(t *testing.T, cfg Config) *Estimator {
	t.Helper()

	e, err := NewEstimator(cfg)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	return e
}

func TestHistoryMedianOfWindow(t *testing.T) {
	samples := []float64{3.9, 3.1, 4.0, 3.5, 3.7, 3.2, 3.8}
	// The last two samples evict 3.9 and then 3.1.
	want := []float64{3.9, 3.5, 3.9, (3.5 + 3.9) / 2, 3.7, 3.5, 3.7}

	h := NewHistory(5)
	if _, ok := h.Median(); ok {
		t.Fatal("empty history reported a median")
	}
	for i, v := range samples {
		h.Add(v)
		got, ok := h.Median()
		if !ok {
			t.Fatalf("sample %d: no median", i)
		}
		if math.Abs(got-want[i]) > 1e-9 {
			t.Errorf("sample %d: median = %v, want %v", i, got, want[i])
		}
	}
	if h.Len() != 5 {
		t.Errorf("Len() = %d, want 5", h.Len())
	}
}

func TestHistoryRejectsSpike(t *testing.T) {
	h := NewHistory(5)
	for _, v := range []float64{3.7, 3.7, 0.1, 3.7, 3.7} {
		h.Add(v)
	}
	got, _ := h.Median()
	if got != 3.7 {
		t.Errorf("median = %v, want 3.7", got)
	}
}

func TestTableTranslateBoundsAndMonotonic(t *testing.T) {
	cfg := testConfig()
	tables := map[string]Table{
		"discharging": {Labels: cfg.LevelsDischarging, VMin: cfg.VMinDischarging, VMax: cfg.VMaxDischarging},
		"charging":    {Labels: cfg.LevelsCharging, VMin: cfg.VMinCharging, VMax: cfg.VMaxCharging},
	}

	for name, table := range tables {
		t.Run(name, func(t *testing.T) {
			prev := -1
			for v := -1.0; v <= 6.0; v += 0.005 {
				idx := table.Translate(v)
				if idx < 0 || idx >= len(table.Labels) {
					t.Fatalf("Translate(%v) = %d out of bounds", v, idx)
				}
				if idx < prev {
					t.Fatalf("Translate(%v) = %d decreased from %d", v, idx, prev)
				}
				prev = idx
			}

			extremes := []float64{math.Inf(-1), math.Inf(1), math.NaN(), -1e300, 1e300, 0}
			for _, v := range extremes {
				idx := table.Translate(v)
				if idx < 0 || idx >= len(table.Labels) {
					t.Errorf("Translate(%v) = %d out of bounds", v, idx)
				}
			}
			if got := table.Translate(table.VMin - 1); got != 0 {
				t.Errorf("below vmin: got %d, want 0", got)
			}
			if got := table.Translate(table.VMax + 1); got != len(table.Labels)-1 {
				t.Errorf("above vmax: got %d, want %d", got, len(table.Labels)-1)
			}
		})
	}
}

func TestTableTranslateRounding(t *testing.T) {
	table := Table{Labels: []string{"a", "b", "c"}, VMin: 3.0, VMax: 4.0}

	tests := []struct {
		v    float64
		want string
	}{
		{3.0, "a"},
		{3.24, "a"},
		{3.26, "b"},
		{3.5, "b"},
		{3.74, "b"},
		{3.76, "c"},
		{4.0, "c"},
	}
	for _, tt := range tests {
		if got := table.Label(tt.v); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestNewEstimatorRejectsShortTables(t *testing.T) {
	cfg := testConfig()
	cfg.LevelsCharging = []string{"charging_full"}
	if _, err := NewEstimator(cfg); err == nil {
		t.Fatal("expected error for single-entry charging table")
	}

	cfg = testConfig()
	cfg.VMaxDischarging = cfg.VMinDischarging
	if _, err := NewEstimator(cfg); err == nil {
		t.Fatal("expected error for empty discharging range")
	}
}

func TestEstimatorInsufficientData(t *testing.T) {
	e := newTestEstimator(t, testConfig())

	r, err := e.Current()
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Current() err = %v, want ErrInsufficientData", err)
	}
	if r.Label != "alert_red" {
		t.Errorf("label = %q, want alert_red", r.Label)
	}

	r, err = e.Sample(math.NaN(), false)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Sample(NaN) err = %v, want ErrInsufficientData", err)
	}
	if r.Label != "alert_red" {
		t.Errorf("label = %q, want alert_red", r.Label)
	}
}

func TestEstimatorTableSelection(t *testing.T) {
	tests := []struct {
		name         string
		voltage      float64
		nowCharging  bool
		wantLabel    string
		wantCharging bool
	}{
		{"empty battery", 3.0, false, "alert_red", false},
		{"full discharging at ceiling", 4.1, false, "full", false},
		{"just above ceiling is charging", 4.15, false, "charging_90", true},
		{"charging top", 4.5, false, "charging_full", true},
		{"sense line forces charging table", 3.6, true, "charging_20", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEstimator(t, testConfig())
			r, err := e.Sample(tt.voltage, tt.nowCharging)
			if err != nil {
				t.Fatalf("Sample: %v", err)
			}
			if r.Label != tt.wantLabel {
				t.Errorf("label = %q, want %q", r.Label, tt.wantLabel)
			}
			if r.Charging != tt.wantCharging {
				t.Errorf("charging = %v, want %v", r.Charging, tt.wantCharging)
			}
		})
	}
}

func TestEstimatorDecideHysteresis(t *testing.T) {
	e := newTestEstimator(t, testConfig())

	tests := []struct {
		name    string
		v       float64
		pending bool
		want    Decision
	}{
		{"healthy idle", 3.8, false, DecisionNone},
		{"below trigger idle", 3.2, false, DecisionBegin},
		{"at trigger idle", 3.3, false, DecisionNone},
		{"below trigger pending", 3.2, true, DecisionNone},
		{"between thresholds pending", 3.5, true, DecisionNone},
		{"at recovery pending", 3.6, true, DecisionNone},
		{"above recovery pending", 3.65, true, DecisionAbort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Decide(tt.v, tt.pending); got != tt.want {
				t.Errorf("Decide(%v, %v) = %v, want %v", tt.v, tt.pending, got, tt.want)
			}
		})
	}

	cfg := testConfig()
	cfg.ShutdownEnabled = false
	disabled := newTestEstimator(t, cfg)
	if got := disabled.Decide(2.0, false); got != DecisionNone {
		t.Errorf("disabled Decide = %v, want none", got)
	}
}

func TestEstimatorBeginsOnceWhenMedianDrops(t *testing.T) {
	e := newTestEstimator(t, testConfig())

	pending := false
	begins := 0
	firstAt := -1
	for i, v := range []float64{3.5, 3.4, 3.2, 3.1, 3.0} {
		r, err := e.Sample(v, false)
		if err != nil {
			t.Fatalf("Sample(%v): %v", v, err)
		}
		if e.Decide(r.Voltage, pending) == DecisionBegin {
			begins++
			if firstAt < 0 {
				firstAt = i
			}
			pending = true
		}
	}
	if begins != 1 {
		t.Fatalf("begin requested %d times, want 1", begins)
	}
	if firstAt != 4 {
		t.Errorf("begin requested at sample %d, want 4 (median 3.2)", firstAt)
	}
}
