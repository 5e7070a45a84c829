package main

import (
	"flag"
	"fmt"

	"github.com/asticode/go-astidrone"
	"github.com/asticode/go-astilog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	policy  string

	// Set during PersistentPreRun
	cfg astidrone.Configuration
)

var rootCmd = &cobra.Command{
	Use:   "astidrone",
	Short: "Fly a Tello drone over its text UDP protocol",
	Long: `astidrone talks to a Tello drone in SDK mode: it validates commands locally,
queues them, keeps the session alive and derives the drone's position from
acknowledged maneuvers. It can also bridge the drone to an MQTT broker.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		// Set logger
		astilog.SetLogger(astilog.New(astilog.FlagConfig()))

		// Load configuration
		if cfg, err = astidrone.LoadConfiguration(cfgFile); err != nil {
			return fmt.Errorf("loading configuration failed: %w", err)
		}

		// Override configuration with flags
		if policy != "" {
			if _, err = astidrone.ParsePolicy(policy); err != nil {
				return err
			}
			cfg.Policy = policy
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "astidrone.yml", "config file")
	rootCmd.PersistentFlags().StringVar(&policy, "policy", "", "gating policy: flight or connection")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}
