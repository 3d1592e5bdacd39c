package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultPath is where the daemon looks for its configuration file.
const DefaultPath = "/etc/pioverlay/config.yaml"

// Config holds the complete application configuration
type Config struct {
	Detection DetectionConfig `mapstructure:"detection"`
	Battery   BatteryConfig   `mapstructure:"battery"`
	Icons     IconsConfig     `mapstructure:"icons"`
	GPIO      GPIOConfig      `mapstructure:"gpio"`
	Shutdown  ShutdownConfig  `mapstructure:"shutdown"`
	Poll      PollConfig      `mapstructure:"poll"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// DetectionConfig enables the monitored devices and hardware lines
type DetectionConfig struct {
	Battery         bool   `mapstructure:"battery"`
	Wifi            bool   `mapstructure:"wifi"`
	Bluetooth       bool   `mapstructure:"bluetooth"`
	Audio           bool   `mapstructure:"audio"`
	BatteryLDO      bool   `mapstructure:"battery_ldo"`
	ShutdownGPIO    bool   `mapstructure:"shutdown_gpio"`
	ADCShutdown     bool   `mapstructure:"adc_shutdown"`
	HideEnvWarnings bool   `mapstructure:"hide_env_warnings"`
	InGameAlpha     int    `mapstructure:"in_game_alpha"`
	GameProcess     string `mapstructure:"game_process"`
	WifiInterface   string `mapstructure:"wifi_interface"`
	AudioControl    string `mapstructure:"audio_control"`
}

// BatteryConfig selects the voltage source and the level tables
type BatteryConfig struct {
	ADC               string   `mapstructure:"adc"` // ads1115, pisugar3 or serial
	Channel           int      `mapstructure:"channel"`
	Gain              float64  `mapstructure:"gain"`
	I2CBus            int      `mapstructure:"i2c_bus"`
	Address           int      `mapstructure:"address"` // 0 selects the chip default
	SerialDevice      string   `mapstructure:"serial_device"`
	BaudRate          int      `mapstructure:"baud_rate"`
	HistorySize       int      `mapstructure:"history_size"`
	VMinDischarging   float64  `mapstructure:"vmin_discharging"`
	VMaxDischarging   float64  `mapstructure:"vmax_discharging"`
	VMinCharging      float64  `mapstructure:"vmin_charging"`
	VMaxCharging      float64  `mapstructure:"vmax_charging"`
	LevelsDischarging []string `mapstructure:"levels_discharging"`
	LevelsCharging    []string `mapstructure:"levels_charging"`
}

// IconsConfig defines icon assets, placement and the renderer
type IconsConfig struct {
	Path       string `mapstructure:"path"`
	Size       int    `mapstructure:"size"`
	Padding    int    `mapstructure:"padding"`
	Horizontal string `mapstructure:"horizontal"` // left or right
	Vertical   string `mapstructure:"vertical"`   // top or bottom
	Renderer   string `mapstructure:"renderer"`
	Display    int    `mapstructure:"display"`
	Layer      int    `mapstructure:"layer"`
	Resolution string `mapstructure:"resolution"` // optional "WxH" override
}

// GPIOConfig defines the interrupt lines
type GPIOConfig struct {
	Chip       string     `mapstructure:"chip"`
	BatteryLDO LineConfig `mapstructure:"battery_ldo"`
	Shutdown   LineConfig `mapstructure:"shutdown"`
}

// LineConfig defines one GPIO input line
type LineConfig struct {
	Pin       int    `mapstructure:"pin"`
	ActiveLow bool   `mapstructure:"active_low"`
	Pull      string `mapstructure:"pull"` // up, down or none
}

// ShutdownConfig defines how the system is powered off
type ShutdownConfig struct {
	Executor string   `mapstructure:"executor"` // command or logind
	Delay    string   `mapstructure:"delay"`
	HoldTime string   `mapstructure:"hold_time"`
	Timeout  string   `mapstructure:"timeout"` // bound on each executor call
	Command  []string `mapstructure:"command"`
}

// PollConfig defines the poll loop cadence
type PollConfig struct {
	Interval     string `mapstructure:"interval"`
	ProbeTimeout string `mapstructure:"probe_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// MetricsConfig defines the metrics server
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
}

// StorageConfig defines optional status publishing backends
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines the Redis status snapshot store
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	Key          string `mapstructure:"key"`
	Channel      string `mapstructure:"channel"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("PIOVERLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// With SetConfigFile a missing file surfaces as an fs error, not
// ConfigFileNotFoundError.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Defaults returns the configuration built from defaults alone.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Keys returns every configuration key that has a default, which is every
// key the daemon understands.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	return v.AllKeys()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Detection defaults
	v.SetDefault("detection.battery", true)
	v.SetDefault("detection.wifi", true)
	v.SetDefault("detection.bluetooth", true)
	v.SetDefault("detection.audio", true)
	v.SetDefault("detection.battery_ldo", false)
	v.SetDefault("detection.shutdown_gpio", false)
	v.SetDefault("detection.adc_shutdown", false)
	v.SetDefault("detection.hide_env_warnings", false)
	v.SetDefault("detection.in_game_alpha", 64)
	v.SetDefault("detection.game_process", "retroarch")
	v.SetDefault("detection.wifi_interface", "wlan0")
	v.SetDefault("detection.audio_control", "Master")

	// Battery defaults
	v.SetDefault("battery.adc", "ads1115")
	v.SetDefault("battery.channel", 0)
	v.SetDefault("battery.gain", 2.0/3.0)
	v.SetDefault("battery.i2c_bus", 1)
	v.SetDefault("battery.address", 0)
	v.SetDefault("battery.serial_device", "/dev/ttyACM0")
	v.SetDefault("battery.baud_rate", 9600)
	v.SetDefault("battery.history_size", 5)
	v.SetDefault("battery.vmin_discharging", 3.2)
	v.SetDefault("battery.vmax_discharging", 4.1)
	v.SetDefault("battery.vmin_charging", 3.6)
	v.SetDefault("battery.vmax_charging", 4.3)
	v.SetDefault("battery.levels_discharging", []string{
		"alert_red", "alert", "20", "30", "50", "60", "80", "90", "full",
	})
	v.SetDefault("battery.levels_charging", []string{
		"charging_20", "charging_30", "charging_50", "charging_60",
		"charging_80", "charging_90", "charging_full",
	})

	// Icon defaults
	v.SetDefault("icons.path", "/usr/local/share/pioverlay/icons")
	v.SetDefault("icons.size", 24)
	v.SetDefault("icons.padding", 8)
	v.SetDefault("icons.horizontal", "right")
	v.SetDefault("icons.vertical", "top")
	v.SetDefault("icons.renderer", "/usr/local/bin/pngview")
	v.SetDefault("icons.display", 0)
	v.SetDefault("icons.layer", 15000)
	v.SetDefault("icons.resolution", "")

	// GPIO defaults
	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.battery_ldo.pin", 4)
	v.SetDefault("gpio.battery_ldo.active_low", true)
	v.SetDefault("gpio.battery_ldo.pull", "up")
	v.SetDefault("gpio.shutdown.pin", 3)
	v.SetDefault("gpio.shutdown.active_low", true)
	v.SetDefault("gpio.shutdown.pull", "up")

	// Shutdown defaults
	v.SetDefault("shutdown.executor", "command")
	v.SetDefault("shutdown.delay", "60s")
	v.SetDefault("shutdown.hold_time", "1s")
	v.SetDefault("shutdown.timeout", "10s")
	v.SetDefault("shutdown.command", []string{"sudo", "shutdown"})

	// Poll defaults
	v.SetDefault("poll.interval", "5s")
	v.SetDefault("poll.probe_timeout", "2s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 1)
	v.SetDefault("logging.max_backups", 1)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
	v.SetDefault("metrics.port", 9101)

	// Storage defaults
	v.SetDefault("storage.redis.enabled", false)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 2)
	v.SetDefault("storage.redis.min_idle_conns", 0)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.key", "pioverlay:status")
	v.SetDefault("storage.redis.channel", "pioverlay:status")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Detection.InGameAlpha < 0 || cfg.Detection.InGameAlpha > 255 {
		return fmt.Errorf("detection.in_game_alpha must be 0-255, got %d", cfg.Detection.InGameAlpha)
	}

	if cfg.Detection.Battery {
		if err := validateBattery(&cfg.Battery); err != nil {
			return err
		}
	}

	switch cfg.Icons.Horizontal {
	case "left", "right":
	default:
		return fmt.Errorf("icons.horizontal must be left or right, got %q", cfg.Icons.Horizontal)
	}
	switch cfg.Icons.Vertical {
	case "top", "bottom":
	default:
		return fmt.Errorf("icons.vertical must be top or bottom, got %q", cfg.Icons.Vertical)
	}
	if cfg.Icons.Size <= 0 {
		return fmt.Errorf("icons.size must be positive, got %d", cfg.Icons.Size)
	}
	if cfg.Icons.Padding < 0 {
		return fmt.Errorf("icons.padding must not be negative, got %d", cfg.Icons.Padding)
	}
	if cfg.Icons.Path == "" {
		return fmt.Errorf("icons.path is required")
	}

	if cfg.Detection.BatteryLDO && cfg.Detection.ShutdownGPIO && cfg.GPIO.BatteryLDO.Pin == cfg.GPIO.Shutdown.Pin {
		return fmt.Errorf("gpio.battery_ldo.pin and gpio.shutdown.pin are both %d", cfg.GPIO.Shutdown.Pin)
	}

	for key, pull := range map[string]string{
		"gpio.battery_ldo.pull": cfg.GPIO.BatteryLDO.Pull,
		"gpio.shutdown.pull":    cfg.GPIO.Shutdown.Pull,
	} {
		switch pull {
		case "up", "down", "none":
		default:
			return fmt.Errorf("%s must be up, down or none, got %q", key, pull)
		}
	}

	switch cfg.Shutdown.Executor {
	case "command":
		if len(cfg.Shutdown.Command) == 0 {
			return fmt.Errorf("shutdown.command is required for the command executor")
		}
	case "logind":
	default:
		return fmt.Errorf("shutdown.executor must be command or logind, got %q", cfg.Shutdown.Executor)
	}

	durations := []struct {
		key      string
		value    string
		positive bool
	}{
		{"shutdown.delay", cfg.Shutdown.Delay, false},
		{"shutdown.hold_time", cfg.Shutdown.HoldTime, true},
		{"shutdown.timeout", cfg.Shutdown.Timeout, true},
		{"poll.interval", cfg.Poll.Interval, true},
		{"poll.probe_timeout", cfg.Poll.ProbeTimeout, true},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if parsed < 0 || (d.positive && parsed == 0) {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.value)
		}
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port)
	}

	if cfg.Storage.Redis.Enabled && cfg.Storage.Redis.Key == "" {
		return fmt.Errorf("storage.redis.key is required")
	}

	return nil
}

func validateBattery(b *BatteryConfig) error {
	switch b.ADC {
	case "ads1115", "pisugar3", "serial":
	default:
		return fmt.Errorf("battery.adc must be ads1115, pisugar3 or serial, got %q", b.ADC)
	}
	if b.HistorySize <= 0 {
		return fmt.Errorf("battery.history_size must be positive, got %d", b.HistorySize)
	}

	tables := []struct {
		name       string
		vmin, vmax float64
		levels     []string
	}{
		{"discharging", b.VMinDischarging, b.VMaxDischarging, b.LevelsDischarging},
		{"charging", b.VMinCharging, b.VMaxCharging, b.LevelsCharging},
	}
	for _, t := range tables {
		if len(t.levels) < 2 {
			return fmt.Errorf("battery.levels_%s needs at least 2 entries, got %d", t.name, len(t.levels))
		}
		if math.IsNaN(t.vmin) || math.IsNaN(t.vmax) || t.vmin >= t.vmax {
			return fmt.Errorf("battery.vmin_%s (%.3f) must be below vmax_%s (%.3f)", t.name, t.vmin, t.name, t.vmax)
		}
	}
	return nil
}
