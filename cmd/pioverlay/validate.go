package main

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/pioverlay/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the pioverlay configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with --dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		_, _ = fmt.Fprintln(os.Stdout)
		_, _ = red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		_, _ = fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	// If dump requested, show full configuration with defaults highlighted
	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(os.Stdout, cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// findUnknownKeys loads the config file and checks for keys the daemon
// does not understand
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return unknownKeys(v.AllKeys(), config.Keys()), nil
}

func unknownKeys(keys, known []string) []string {
	valid := make(map[string]bool, len(known))
	for _, k := range known {
		valid[k] = true
	}

	unknown := []string{}
	for _, key := range keys {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(w io.Writer, cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	field := func(name string, value, defaultValue interface{}) {
		dumpField(w, name, value, defaultValue, yellow, green)
	}

	// Detection
	_, _ = cyan.Fprintln(w, "\n[detection]")
	field("  battery", cfg.Detection.Battery, defaultCfg.Detection.Battery)
	field("  wifi", cfg.Detection.Wifi, defaultCfg.Detection.Wifi)
	field("  bluetooth", cfg.Detection.Bluetooth, defaultCfg.Detection.Bluetooth)
	field("  audio", cfg.Detection.Audio, defaultCfg.Detection.Audio)
	field("  battery_ldo", cfg.Detection.BatteryLDO, defaultCfg.Detection.BatteryLDO)
	field("  shutdown_gpio", cfg.Detection.ShutdownGPIO, defaultCfg.Detection.ShutdownGPIO)
	field("  adc_shutdown", cfg.Detection.ADCShutdown, defaultCfg.Detection.ADCShutdown)
	field("  hide_env_warnings", cfg.Detection.HideEnvWarnings, defaultCfg.Detection.HideEnvWarnings)
	field("  in_game_alpha", cfg.Detection.InGameAlpha, defaultCfg.Detection.InGameAlpha)
	field("  game_process", cfg.Detection.GameProcess, defaultCfg.Detection.GameProcess)
	field("  wifi_interface", cfg.Detection.WifiInterface, defaultCfg.Detection.WifiInterface)
	field("  audio_control", cfg.Detection.AudioControl, defaultCfg.Detection.AudioControl)

	// Battery
	_, _ = cyan.Fprintln(w, "\n[battery]")
	field("  adc", cfg.Battery.ADC, defaultCfg.Battery.ADC)
	field("  channel", cfg.Battery.Channel, defaultCfg.Battery.Channel)
	field("  gain", cfg.Battery.Gain, defaultCfg.Battery.Gain)
	field("  i2c_bus", cfg.Battery.I2CBus, defaultCfg.Battery.I2CBus)
	field("  address", cfg.Battery.Address, defaultCfg.Battery.Address)
	field("  serial_device", cfg.Battery.SerialDevice, defaultCfg.Battery.SerialDevice)
	field("  baud_rate", cfg.Battery.BaudRate, defaultCfg.Battery.BaudRate)
	field("  history_size", cfg.Battery.HistorySize, defaultCfg.Battery.HistorySize)
	field("  vmin_discharging", cfg.Battery.VMinDischarging, defaultCfg.Battery.VMinDischarging)
	field("  vmax_discharging", cfg.Battery.VMaxDischarging, defaultCfg.Battery.VMaxDischarging)
	field("  vmin_charging", cfg.Battery.VMinCharging, defaultCfg.Battery.VMinCharging)
	field("  vmax_charging", cfg.Battery.VMaxCharging, defaultCfg.Battery.VMaxCharging)
	field("  levels_discharging", cfg.Battery.LevelsDischarging, defaultCfg.Battery.LevelsDischarging)
	field("  levels_charging", cfg.Battery.LevelsCharging, defaultCfg.Battery.LevelsCharging)

	// Icons
	_, _ = cyan.Fprintln(w, "\n[icons]")
	field("  path", cfg.Icons.Path, defaultCfg.Icons.Path)
	field("  size", cfg.Icons.Size, defaultCfg.Icons.Size)
	field("  padding", cfg.Icons.Padding, defaultCfg.Icons.Padding)
	field("  horizontal", cfg.Icons.Horizontal, defaultCfg.Icons.Horizontal)
	field("  vertical", cfg.Icons.Vertical, defaultCfg.Icons.Vertical)
	field("  renderer", cfg.Icons.Renderer, defaultCfg.Icons.Renderer)
	field("  display", cfg.Icons.Display, defaultCfg.Icons.Display)
	field("  layer", cfg.Icons.Layer, defaultCfg.Icons.Layer)
	field("  resolution", cfg.Icons.Resolution, defaultCfg.Icons.Resolution)

	// GPIO
	_, _ = cyan.Fprintln(w, "\n[gpio]")
	field("  chip", cfg.GPIO.Chip, defaultCfg.GPIO.Chip)
	_, _ = cyan.Fprintln(w, "  [gpio.battery_ldo]")
	field("    pin", cfg.GPIO.BatteryLDO.Pin, defaultCfg.GPIO.BatteryLDO.Pin)
	field("    active_low", cfg.GPIO.BatteryLDO.ActiveLow, defaultCfg.GPIO.BatteryLDO.ActiveLow)
	field("    pull", cfg.GPIO.BatteryLDO.Pull, defaultCfg.GPIO.BatteryLDO.Pull)
	_, _ = cyan.Fprintln(w, "  [gpio.shutdown]")
	field("    pin", cfg.GPIO.Shutdown.Pin, defaultCfg.GPIO.Shutdown.Pin)
	field("    active_low", cfg.GPIO.Shutdown.ActiveLow, defaultCfg.GPIO.Shutdown.ActiveLow)
	field("    pull", cfg.GPIO.Shutdown.Pull, defaultCfg.GPIO.Shutdown.Pull)

	// Shutdown
	_, _ = cyan.Fprintln(w, "\n[shutdown]")
	field("  executor", cfg.Shutdown.Executor, defaultCfg.Shutdown.Executor)
	field("  delay", cfg.Shutdown.Delay, defaultCfg.Shutdown.Delay)
	field("  hold_time", cfg.Shutdown.HoldTime, defaultCfg.Shutdown.HoldTime)
	field("  timeout", cfg.Shutdown.Timeout, defaultCfg.Shutdown.Timeout)
	field("  command", cfg.Shutdown.Command, defaultCfg.Shutdown.Command)

	// Poll
	_, _ = cyan.Fprintln(w, "\n[poll]")
	field("  interval", cfg.Poll.Interval, defaultCfg.Poll.Interval)
	field("  probe_timeout", cfg.Poll.ProbeTimeout, defaultCfg.Poll.ProbeTimeout)

	// Logging
	_, _ = cyan.Fprintln(w, "\n[logging]")
	field("  level", cfg.Logging.Level, defaultCfg.Logging.Level)
	field("  format", cfg.Logging.Format, defaultCfg.Logging.Format)
	field("  file", cfg.Logging.File, defaultCfg.Logging.File)
	field("  max_size_mb", cfg.Logging.MaxSizeMB, defaultCfg.Logging.MaxSizeMB)
	field("  max_backups", cfg.Logging.MaxBackups, defaultCfg.Logging.MaxBackups)

	// Metrics
	_, _ = cyan.Fprintln(w, "\n[metrics]")
	field("  enabled", cfg.Metrics.Enabled, defaultCfg.Metrics.Enabled)
	field("  bind_address", cfg.Metrics.BindAddress, defaultCfg.Metrics.BindAddress)
	field("  port", cfg.Metrics.Port, defaultCfg.Metrics.Port)

	// Storage
	_, _ = cyan.Fprintln(w, "\n[storage]")
	_, _ = cyan.Fprintln(w, "  [storage.redis]")
	field("    enabled", cfg.Storage.Redis.Enabled, defaultCfg.Storage.Redis.Enabled)
	field("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host)
	field("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port)
	field("    password", redactPassword(cfg.Storage.Redis.Password), redactPassword(defaultCfg.Storage.Redis.Password))
	field("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB)
	field("    pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize)
	field("    min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns)
	field("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout)
	field("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout)
	field("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout)
	field("    key", cfg.Storage.Redis.Key, defaultCfg.Storage.Redis.Key)
	field("    channel", cfg.Storage.Redis.Channel, defaultCfg.Storage.Redis.Channel)

	// Display unknown keys if any
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)

		_, _ = cyan.Fprintln(w, "\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(w, "  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(w io.Writer, name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	valueStr := fmt.Sprintf("%v", value)

	if reflect.DeepEqual(value, defaultValue) {
		_, _ = defaultColor.Fprintf(w, "%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Fprintf(w, "%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
