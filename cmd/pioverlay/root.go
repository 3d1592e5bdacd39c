package main

import (
	"fmt"
	"os"

	"github.com/goodtune/pioverlay/internal/config"
	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pioverlay",
	Short: "pioverlay - Raspberry Pi status overlay daemon",
	Long: `pioverlay draws battery, wifi, bluetooth, audio and throttling icons on
top of the Raspberry Pi display and powers the system off safely when the
battery runs low or the shutdown button is held.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to run command when no subcommand is provided
		return runDaemon(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
