package main

import (
	"fmt"

	"github.com/asticode/go-astidrone"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <command>...",
	Short: "Send wire commands one after the other",
	Example: `  astidrone send takeoff "forward 50" "cw 90" land
  astidrone send "go 50 50 0 20"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		// Parse everything first so that nothing is sent on typos
		var cs []astidrone.Command
		for _, a := range args {
			var c astidrone.Command
			if c, err = astidrone.ParseCommand(a); err != nil {
				return errors.Wrapf(err, "main: parsing '%s' failed", a)
			}
			cs = append(cs, c)
		}

		// Fly
		return fly(func(d *astidrone.Drone) (err error) {
			for _, c := range cs {
				// The session is already in sdk mode
				if c.Code() == astidrone.EnterSdkMode {
					fmt.Printf("%-24s %s\n", c, d.Controller().ConnectionState())
					continue
				}

				// Execute
				var r *astidrone.Response
				if r, err = execute(d.Controller(), c); err != nil {
					return
				}
				printResponse(c, r)
			}
			return
		})
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
