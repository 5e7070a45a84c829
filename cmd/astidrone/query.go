package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/asticode/go-astidrone"
	"github.com/spf13/cobra"
)

var queries = map[string]astidrone.CommandCode{
	"battery": astidrone.GetBattery,
	"sdk":     astidrone.GetSdkVersion,
	"sn":      astidrone.GetSerialNumber,
	"speed":   astidrone.GetSpeed,
	"time":    astidrone.GetTime,
	"wifi":    astidrone.GetWifiSnr,
}

func queryNames() (ns []string) {
	for n := range queries {
		ns = append(ns, n)
	}
	sort.Strings(ns)
	return
}

var queryCmd = &cobra.Command{
	Use:       "query <what>...",
	Short:     "Query the drone: " + strings.Join(queryNames(), ", "),
	Args:      cobra.MatchAll(cobra.MinimumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: queryNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fly(func(d *astidrone.Drone) (err error) {
			// Query
			for _, a := range args {
				c := astidrone.MustNewCommand(queries[a])
				var r *astidrone.Response
				if r, err = execute(d.Controller(), c); err != nil {
					return
				}
				printResponse(c, r)
			}

			// Print what has been parsed
			s := d.Controller().InterrogativeState()
			fmt.Printf("\nbattery: %d%%, speed: %dcm/s, time: %ds, wifi: %s, sdk: %s, sn: %s\n",
				s.Battery, s.Speed, s.Time, s.WifiSnr, s.SdkVersion, s.SerialNumber)
			return
		})
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
