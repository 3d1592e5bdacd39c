package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/pioverlay/internal/adc"
	"github.com/goodtune/pioverlay/internal/arbiter"
	"github.com/goodtune/pioverlay/internal/battery"
	"github.com/goodtune/pioverlay/internal/config"
	"github.com/goodtune/pioverlay/internal/gpio"
	"github.com/goodtune/pioverlay/internal/metrics"
	"github.com/goodtune/pioverlay/internal/overlay"
	"github.com/goodtune/pioverlay/internal/probe"
	"github.com/goodtune/pioverlay/internal/shutdown"
	"github.com/goodtune/pioverlay/internal/status"
	"github.com/goodtune/pioverlay/internal/storage/redis"
	"github.com/goodtune/pioverlay/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the overlay daemon",
	Long:  `Run the overlay daemon: poll the battery and devices, draw the icons and watch the shutdown lines.`,
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting pioverlay")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return err
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Discover the screen and lay out the icons
	res := probe.Resolution{Override: cfg.Icons.Resolution}
	width, height, source := res.Detect(ctx)
	layout := overlay.Layout{
		Width:      width,
		Height:     height,
		Size:       cfg.Icons.Size,
		Padding:    cfg.Icons.Padding,
		Horizontal: cfg.Icons.Horizontal,
		Vertical:   cfg.Icons.Vertical,
	}
	logger.Info().
		Int("width", width).
		Int("height", height).
		Str("source", source).
		Msg("Screen resolution detected")

	icons, err := overlay.NewIcons(cfg.Icons.Path, cfg.Icons.Size)
	if err != nil {
		return err
	}

	renderer := overlay.NewPngview(overlay.PngviewConfig{
		Binary:  cfg.Icons.Renderer,
		Display: cfg.Icons.Display,
		Layer:   cfg.Icons.Layer,
	}, logger)
	manager := overlay.NewManager(renderer, logger)
	defer manager.Close()

	// Initialize shutdown controller
	executor, closeExecutor, err := openExecutor(cfg.Shutdown, logger)
	if err != nil {
		return err
	}
	defer closeExecutor()

	var warner shutdown.Warner
	if asset, err := icons.Warning(); err != nil {
		logger.Warn().Err(err).Msg("Shutdown warning icon missing, warnings will not be shown")
	} else {
		warner = overlay.NewWarning(manager, asset, layout)
	}

	controller := shutdown.NewController(executor, warner, parseDuration(cfg.Shutdown.Delay, time.Minute), logger)
	controller.SetExecTimeout(parseDuration(cfg.Shutdown.Timeout, shutdown.DefaultExecTimeout))

	logger.Info().
		Str("executor", cfg.Shutdown.Executor).
		Str("delay", cfg.Shutdown.Delay).
		Msg("Shutdown controller initialized")

	deps := status.Deps{
		Display:    manager,
		Icons:      icons,
		Layout:     layout,
		Controller: controller,
	}

	// Initialize battery source
	if cfg.Detection.Battery {
		est, err := newEstimator(cfg)
		if err != nil {
			return err
		}
		src, err := openVoltage(cfg.Battery)
		if err != nil {
			logger.Error().Err(err).Str("adc", cfg.Battery.ADC).Msg("Failed to open battery ADC")
			deps.Voltage = failedReader{err: err}
		} else {
			defer closeQuietly(src, "battery ADC", logger)
			deps.Voltage = src
			logger.Info().Str("adc", cfg.Battery.ADC).Msg("Battery ADC opened")
		}
		deps.Estimator = est
	}

	// Initialize device probes
	devices, closeDevices := buildDevices(cfg.Detection, logger)
	defer closeDevices()
	deps.Devices = devices

	if !cfg.Detection.HideEnvWarnings {
		deps.Env = &probe.Environment{}
	}

	if game, err := probe.NewGameDetector(cfg.Detection.GameProcess, ""); err != nil {
		logger.Warn().Err(err).Msg("Game detection disabled")
	} else {
		deps.Game = game
	}

	// Initialize interrupt arbiter
	arb, closeLines := openArbiter(ctx, cfg, logger)
	defer closeLines()
	if arb != nil {
		deps.Intents = arb.Intents()
	}

	// Initialize storage
	if cfg.Storage.Redis.Enabled {
		store, err := redis.Open(cfg.Storage.Redis)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to connect to Redis, status snapshots disabled")
		} else {
			defer closeQuietly(store, "storage", logger)
			deps.Store = store
			logger.Info().
				Str("redis_host", cfg.Storage.Redis.Host).
				Int("redis_port", cfg.Storage.Redis.Port).
				Str("key", cfg.Storage.Redis.Key).
				Msg("Storage initialized")
		}
	}

	// Hook the poll loop into systemd
	if wd := systemd.WatchdogInterval(); wd > 0 {
		deps.Watchdog = systemd.NotifyWatchdog
		logger.Info().Dur("timeout", wd).Msg("systemd watchdog enabled")
	}
	deps.Status = systemd.NotifyStatus

	interval := parseDuration(cfg.Poll.Interval, status.DefaultInterval)
	if wd := systemd.WatchdogInterval(); wd > 0 && interval >= wd {
		logger.Warn().Dur("interval", interval).Dur("watchdog", wd).Msg("Poll interval exceeds the watchdog timeout")
	}

	poller, err := status.New(status.Config{
		Interval:       interval,
		ProbeTimeout:   parseDuration(cfg.Poll.ProbeTimeout, probe.DefaultTimeout),
		InGameAlpha:    cfg.Detection.InGameAlpha,
		BatteryChannel: cfg.Battery.Channel,
	}, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize poller: %w", err)
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled || sdListeners.Metrics != nil {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer = metrics.NewServer(metricsAddr, poller.Healthy, logger)

		// Use systemd socket-activated listener if available
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- poller.Run(ctx)
	}()

	logger.Info().
		Int("devices", len(devices)).
		Bool("battery", deps.Voltage != nil).
		Bool("gpio", arb != nil).
		Bool("snapshots", deps.Store != nil).
		Dur("interval", interval).
		Msg("pioverlay startup complete")

	// Notify systemd that we're ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	// Wait for signals (shutdown or redraw)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	var runErr, pollErr error
	running := true
	for running {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				logger.Info().Msg("SIGHUP received, redrawing all icons")
				icons.Purge()
				poller.Refresh()
				continue
			case os.Interrupt, syscall.SIGTERM:
				logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
			}
			running = false
			cancel()
			pollErr = <-done
		case pollErr = <-done:
			// The poll loop only returns on cancellation
			runErr = fmt.Errorf("poll loop stopped: %w", pollErr)
			running = false
		}
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if pollErr != nil && !errors.Is(pollErr, context.Canceled) {
		logger.Error().Err(pollErr).Msg("Poll loop failed")
	}

	if arb != nil {
		arb.Stop()
		if drops := arb.Drops(); drops > 0 {
			logger.Warn().Uint32("drops", drops).Msg("GPIO edges were dropped while the arbiter queue was full")
		}
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Str("shutdown", controller.State().String()).Msg("pioverlay stopped")

	return runErr
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	var out io.Writer = os.Stdout
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	// The rotated file always gets JSON
	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}

	return zerolog.New(out).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func newEstimator(cfg *config.Config) (*battery.Estimator, error) {
	est, err := battery.NewEstimator(battery.Config{
		VMinDischarging:   cfg.Battery.VMinDischarging,
		VMaxDischarging:   cfg.Battery.VMaxDischarging,
		VMinCharging:      cfg.Battery.VMinCharging,
		VMaxCharging:      cfg.Battery.VMaxCharging,
		LevelsDischarging: cfg.Battery.LevelsDischarging,
		LevelsCharging:    cfg.Battery.LevelsCharging,
		HistorySize:       cfg.Battery.HistorySize,
		ShutdownEnabled:   cfg.Detection.ADCShutdown,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize battery estimator: %w", err)
	}
	return est, nil
}

func openVoltage(cfg config.BatteryConfig) (adc.Source, error) {
	return adc.Open(adc.Config{
		Kind:         adc.Kind(cfg.ADC),
		Gain:         cfg.Gain,
		I2CBus:       cfg.I2CBus,
		Address:      uint16(cfg.Address),
		SerialDevice: cfg.SerialDevice,
		BaudRate:     cfg.BaudRate,
	})
}

// failedReader stands in for an ADC that could not be opened so the battery
// icon still shows the lowest level.
type failedReader struct{ err error }

func (f failedReader) Read(int) (float64, error) { return 0, f.err }

// failedProber keeps the slot of a device whose backend could not be opened.
type failedProber struct{ err error }

func (f failedProber) GetState(context.Context) (probe.State, error) {
	return probe.State{}, f.err
}

// buildDevices returns the enabled device probes in display order.
func buildDevices(cfg config.DetectionConfig, logger zerolog.Logger) ([]status.Device, func()) {
	var devices []status.Device
	cleanup := func() {}

	if cfg.Wifi {
		devices = append(devices, status.Device{
			Name:   "wifi",
			Slot:   overlay.SlotWifi,
			Prober: &probe.Wifi{Interface: cfg.WifiInterface},
		})
	}
	if cfg.Bluetooth {
		var prober probe.Prober
		bt, err := probe.NewBluetooth()
		if err != nil {
			logger.Warn().Err(err).Msg("Bluetooth probe unavailable")
			prober = failedProber{err: err}
		} else {
			prober = bt
			cleanup = func() { closeQuietly(bt, "bluetooth probe", logger) }
		}
		devices = append(devices, status.Device{Name: "bluetooth", Slot: overlay.SlotBluetooth, Prober: prober})
	}
	if cfg.Audio {
		devices = append(devices, status.Device{
			Name:   "audio",
			Slot:   overlay.SlotAudio,
			Prober: &probe.Audio{Control: cfg.AudioControl},
		})
	}
	return devices, cleanup
}

func openExecutor(cfg config.ShutdownConfig, logger zerolog.Logger) (shutdown.Executor, func(), error) {
	switch cfg.Executor {
	case "logind":
		exec, err := shutdown.NewLogindExecutor(logger)
		if err != nil {
			return nil, nil, err
		}
		return exec, exec.Close, nil
	default:
		return shutdown.NewCommandExecutor(cfg.Command, logger), func() {}, nil
	}
}

// openArbiter requests the enabled GPIO lines and starts the arbiter. Any
// failure disables hardware shutdown with a single log line; the overlay
// keeps running.
func openArbiter(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*arbiter.Arbiter, func()) {
	if !cfg.Detection.BatteryLDO && !cfg.Detection.ShutdownGPIO {
		return nil, func() {}
	}

	var lines []*gpio.Line
	closeLines := func() {
		for _, l := range lines {
			closeQuietly(l, "gpio line", logger)
		}
	}

	open := func(lc config.LineConfig) (*gpio.Line, error) {
		l, err := gpio.Open(gpio.LineConfig{Chip: cfg.GPIO.Chip, Offset: lc.Pin, Pull: gpio.Pull(lc.Pull)})
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
		return l, nil
	}

	acfg := arbiter.Config{HoldTime: parseDuration(cfg.Shutdown.HoldTime, arbiter.DefaultHoldTime)}
	if cfg.Detection.BatteryLDO {
		l, err := open(cfg.GPIO.BatteryLDO)
		if err != nil {
			logger.Error().Err(err).Msg("GPIO unavailable, hardware shutdown disabled")
			closeLines()
			return nil, func() {}
		}
		acfg.LDO = arbiter.LineConfig{Pin: l, ActiveLow: cfg.GPIO.BatteryLDO.ActiveLow}
	}
	if cfg.Detection.ShutdownGPIO {
		l, err := open(cfg.GPIO.Shutdown)
		if err != nil {
			logger.Error().Err(err).Msg("GPIO unavailable, hardware shutdown disabled")
			closeLines()
			return nil, func() {}
		}
		acfg.Button = arbiter.LineConfig{Pin: l, ActiveLow: cfg.GPIO.Shutdown.ActiveLow}
	}

	arb := arbiter.New(acfg, logger)
	if err := arb.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("GPIO interrupts unavailable, hardware shutdown disabled")
		closeLines()
		return nil, func() {}
	}
	return arb, closeLines
}

func closeQuietly(c io.Closer, what string, logger zerolog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msgf("Failed to close %s", what)
	}
}
