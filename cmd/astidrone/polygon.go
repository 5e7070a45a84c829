package main

import (
	"time"

	"github.com/asticode/go-astidrone"
	"github.com/asticode/go-astilog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	polygonCounterClockwise bool
	polygonLength           int
	polygonSides            int
	polygonSpeed            int
)

var polygonCmd = &cobra.Command{
	Use:   "polygon",
	Short: "Take off, fly a regular polygon and land",
	RunE: func(cmd *cobra.Command, args []string) error {
		d := astidrone.Clockwise
		if polygonCounterClockwise {
			d = astidrone.CounterClockwise
		}
		return fly(func(dr *astidrone.Drone) (err error) {
			ctrl := dr.Controller()

			// Log positions
			defer ctrl.OnPositionChanged(func(p astidrone.Position) {
				astilog.Infof("main: position is %s", p)
			})()

			// Take off
			var r *astidrone.Response
			if r, err = execute(ctrl, astidrone.MustNewCommand(astidrone.Takeoff)); err != nil {
				return errors.Wrap(err, "main: taking off failed")
			} else if !ctrl.IsFlying() {
				printResponse(astidrone.MustNewCommand(astidrone.Takeoff), r)
				return errors.New("main: drone is not flying")
			}

			// Make sure to land
			defer func() {
				if _, errLand := execute(ctrl, astidrone.MustNewCommand(astidrone.Land)); errLand != nil {
					astilog.Error(errors.Wrap(errLand, "main: landing failed"))
				}
			}()

			// Fly
			if err = ctrl.FlyPolygon(polygonSides, polygonLength, polygonSpeed, d); err != nil {
				return errors.Wrap(err, "main: flying polygon failed")
			}

			// Wait for the queue to be drained
			for ctrl.Messenger().Len() > 0 && ctrl.IsFlying() {
				time.Sleep(100 * time.Millisecond)
			}
			return
		})
	},
}

func init() {
	polygonCmd.Flags().IntVar(&polygonSides, "sides", 4, "number of sides")
	polygonCmd.Flags().IntVar(&polygonLength, "length", 100, "length of a side in cm")
	polygonCmd.Flags().IntVar(&polygonSpeed, "speed", 50, "speed in cm/s")
	polygonCmd.Flags().BoolVar(&polygonCounterClockwise, "ccw", false, "turn counter clockwise")
	rootCmd.AddCommand(polygonCmd)
}
