package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/pioverlay/internal/battery"
	"github.com/goodtune/pioverlay/internal/config"
	"github.com/goodtune/pioverlay/internal/probe"
	"github.com/goodtune/pioverlay/internal/storage"
	"github.com/goodtune/pioverlay/internal/storage/redis"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var statusSamples int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe every device once and print what the overlay would show",
	Long: `Probe the battery, wifi, bluetooth, audio and throttling state once and
print the icon each would select. Does not draw anything or touch the
shutdown state. When Redis publishing is enabled the last published snapshot
is shown too.`,
	Example: `  pioverlay status
  pioverlay -c config.yaml status --samples 5`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusSamples, "samples", 1, "Number of battery samples to take (one per second)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for status mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := parseDuration(cfg.Poll.ProbeTimeout, probe.DefaultTimeout)

	cyan := color.New(color.FgCyan, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("PIOVERLAY STATUS")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	res := probe.Resolution{Override: cfg.Icons.Resolution}
	width, height, source := res.Detect(ctx)
	fmt.Printf("Screen:      %dx%d (%s)\n", width, height, source)

	if cfg.Detection.Battery {
		printBattery(cfg, statusSamples)
	} else {
		printDisabled("Battery")
	}

	devices, closeDevices := buildDevices(cfg.Detection, logger)
	defer closeDevices()
	for _, d := range devices {
		st, err := probe.Get(ctx, d.Prober, timeout)
		printState(d.Name, st, err)
	}

	if !cfg.Detection.HideEnvWarnings {
		printEnvironment(ctx, timeout)
	}

	if game, err := probe.NewGameDetector(cfg.Detection.GameProcess, ""); err == nil {
		running, err := game.Running(ctx)
		switch {
		case err != nil:
			printLine("In game", "unknown", color.New(color.FgYellow), err.Error())
		case running:
			printLine("In game", "yes", color.New(color.FgYellow), fmt.Sprintf("icons drawn at alpha %d", cfg.Detection.InGameAlpha))
		default:
			printLine("In game", "no", color.New(color.FgGreen), "")
		}
	}

	if cfg.Storage.Redis.Enabled {
		printSnapshot(ctx, cfg.Storage.Redis)
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	return nil
}

func printBattery(cfg *config.Config, samples int) {
	est, err := newEstimator(cfg)
	if err != nil {
		printLine("Battery", "error", color.New(color.FgRed, color.Bold), err.Error())
		return
	}
	src, err := openVoltage(cfg.Battery)
	if err != nil {
		printLine("Battery", probe.Unavailable, color.New(color.FgRed, color.Bold), err.Error())
		return
	}
	defer src.Close()

	if samples < 1 {
		samples = 1
	}
	var (
		r       battery.Reading
		lastErr error
	)
	for i := 0; i < samples; i++ {
		if i > 0 {
			time.Sleep(time.Second)
		}
		v, err := src.Read(cfg.Battery.Channel)
		if err != nil {
			lastErr = err
			continue
		}
		r, _ = est.Sample(v, false)
	}
	if r.Samples == 0 {
		msg := "no samples"
		if lastErr != nil {
			msg = lastErr.Error()
		}
		printLine("Battery", est.WorstLabel(), color.New(color.FgRed, color.Bold), msg)
		return
	}

	c := color.New(color.FgGreen)
	if r.Index <= 1 && !r.Charging {
		c = color.New(color.FgRed, color.Bold)
	}
	detail := fmt.Sprintf("%.3fV median of %d", r.Voltage, r.Samples)
	if r.Charging {
		detail += ", charging"
	}
	if d := est.Decide(r.Voltage, false); d == battery.DecisionBegin {
		detail += ", below shutdown threshold"
	}
	printLine("Battery", r.Label, c, detail)
}

func printEnvironment(ctx context.Context, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	flags, err := (&probe.Environment{}).Flags(ctx)
	if err != nil {
		printLine("Environment", probe.Unavailable, color.New(color.FgRed), err.Error())
		return
	}
	active := flags.Active()
	if len(active) == 0 {
		printLine("Environment", probe.EnvNormal, color.New(color.FgGreen), "")
		return
	}
	printLine("Environment", strings.Join(active, ", "), color.New(color.FgYellow, color.Bold), "")
}

func printSnapshot(ctx context.Context, cfg config.RedisConfig) {
	store, err := redis.Open(cfg)
	if err != nil {
		printLine("Published", "error", color.New(color.FgRed), err.Error())
		return
	}
	defer store.Close()

	snap, err := store.Latest(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		printLine("Published", "none", color.New(color.FgYellow), cfg.Key)
		return
	case err != nil:
		printLine("Published", "error", color.New(color.FgRed), err.Error())
		return
	}

	age := time.Since(snap.UpdatedAt).Round(time.Second)
	printLine("Published", snap.Shutdown, color.New(color.FgGreen),
		fmt.Sprintf("battery %s %.2fV, %s ago", snap.Battery, snap.Voltage, age))
}

func printState(name string, st probe.State, err error) {
	if err != nil {
		printLine(name, st.Label, color.New(color.FgRed), st.Info)
		return
	}
	printLine(name, st.Label, color.New(color.FgGreen), st.Info)
}

func printDisabled(name string) {
	printLine(name, "disabled", color.New(color.Faint), "")
}

func printLine(name, value string, c *color.Color, detail string) {
	fmt.Printf("%-13s", strings.ToUpper(name[:1])+name[1:]+":")
	c.Print(value)
	if detail != "" {
		fmt.Printf("  (%s)", detail)
	}
	fmt.Println()
}
