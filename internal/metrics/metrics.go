package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Battery metrics
	BatteryVoltage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pioverlay_battery_voltage_volts",
			Help: "Median-smoothed battery voltage",
		},
	)

	BatteryLevelIndex = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pioverlay_battery_level_index",
			Help: "Index of the current battery level in the selected table",
		},
		[]string{"table"},
	)

	BatteryReadErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pioverlay_battery_read_errors_total",
			Help: "Voltage reads that failed or returned a non-finite value",
		},
	)

	// Shutdown metrics
	ShutdownState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pioverlay_shutdown_state",
			Help: "Shutdown state (0 idle, 1 pending low voltage, 2 pending button)",
		},
	)

	ShutdownIntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pioverlay_shutdown_intents_total",
			Help: "Shutdown intents applied by the controller",
		},
		[]string{"kind", "reason", "source"},
	)

	// Overlay metrics
	OverlayProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pioverlay_overlay_processes",
			Help: "Number of live overlay renderer processes",
		},
	)

	OverlaySpawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pioverlay_overlay_spawn_failures_total",
			Help: "Renderer processes that failed to start",
		},
		[]string{"slot"},
	)

	// Probe metrics
	ProbeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pioverlay_probe_failures_total",
			Help: "Device probes that returned an error or timed out",
		},
		[]string{"device"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pioverlay_poll_cycle_duration_seconds",
			Help:    "Duration of one poll cycle",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// GPIO metrics
	GPIOEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pioverlay_gpio_events_total",
			Help: "Debounced GPIO edges seen by the arbiter",
		},
		[]string{"line", "edge"},
	)

	GPIOEventDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pioverlay_gpio_event_drops_total",
			Help: "GPIO callbacks dropped because the worker queue was full",
		},
	)

	GPIOReadErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pioverlay_gpio_read_errors_total",
			Help: "GPIO level reads that failed and were ignored",
		},
		[]string{"line"},
	)

	// Snapshot metrics
	SnapshotPublishErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pioverlay_snapshot_publish_errors_total",
			Help: "Failed status snapshot writes",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		BatteryVoltage,
		BatteryLevelIndex,
		BatteryReadErrors,
		ShutdownState,
		ShutdownIntentsTotal,
		OverlayProcesses,
		OverlaySpawnFailures,
		ProbeFailures,
		CycleDuration,
		GPIOEventsTotal,
		GPIOEventDrops,
		GPIOReadErrors,
		SnapshotPublishErrors,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server. healthy reports whether the poll
// loop is still cycling; nil means always healthy.
func NewServer(addr string, healthy func() bool, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if healthy != nil && !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("STALE"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
