package main

import (
	"github.com/asticode/go-astidrone"
	"github.com/asticode/go-astidrone/mqttbridge"
	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astilog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var bridgeConnect bool

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge the drone to an MQTT broker",
	Long: `Publishes the drone's events and responses on <prefix>/<drone id>/events/<event>
and <prefix>/<drone id>/response, and executes the wire commands received on
<prefix>/<drone id>/request. Sending "command" on the request topic connects.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		// Check broker
		if cfg.MQTT.Broker == "" {
			return errors.New("main: no mqtt broker configured")
		}

		// Create worker
		w := astikit.NewWorker(astikit.WorkerOptions{Logger: astilog.GetLogger()})

		// Create the drone
		d := astidrone.New(cfg)
		defer d.Close()

		// Create bridge
		b := mqttbridge.New(d.Controller(), mqttbridge.OptionsFromConfiguration(cfg.MQTT))

		// Handle signals
		w.HandleSignals(astikit.TermSignalHandler(func() {
			// Make sure to land on term signal
			d.Controller().Land()
			b.Stop()
		}))

		// Connect
		if bridgeConnect {
			if err = d.Connect(); err != nil {
				return errors.Wrap(err, "main: connecting to the drone failed")
			}
		} else if err = d.Start(); err != nil {
			return errors.Wrap(err, "main: starting the drone failed")
		}

		// Run bridge
		w.NewTask().Do(func() {
			defer w.Stop()
			if err = b.Run(); err != nil {
				err = errors.Wrap(err, "main: running bridge failed")
			}
		})

		// Wait
		w.Wait()
		return
	},
}

func init() {
	bridgeCmd.Flags().BoolVar(&bridgeConnect, "connect", true, "connect to the drone before bridging")
	rootCmd.AddCommand(bridgeCmd)
}
