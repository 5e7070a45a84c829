package main

import (
	"fmt"
	"time"

	"github.com/asticode/go-astidrone"
	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astilog"
	"github.com/pkg/errors"
)

// fly connects to the drone and runs f in a worker task. The drone lands on term signals.
func fly(f func(d *astidrone.Drone) error) (err error) {
	// Create worker
	w := astikit.NewWorker(astikit.WorkerOptions{Logger: astilog.GetLogger()})

	// Create the drone
	d := astidrone.New(cfg)
	defer d.Close()

	// Handle signals
	w.HandleSignals(astikit.TermSignalHandler(func() {
		// Make sure to land on term signal
		astilog.Warn("main: landing")
		d.Controller().Land()
	}))

	// Connect
	if err = d.Connect(); err != nil {
		return errors.Wrap(err, "main: connecting to the drone failed")
	}

	// Execute in a task
	w.NewTask().Do(func() {
		defer w.Stop()
		err = f(d)
	})

	// Wait
	w.Wait()
	return
}

// execute executes c and waits for its response. It returns nil when c hasn't been sent.
func execute(ctrl *astidrone.FlightController, c astidrone.Command) (r *astidrone.Response, err error) {
	// Listen to responses
	rs := make(chan *astidrone.Response, 1)
	defer ctrl.OnResponseReceived(func(r *astidrone.Response) {
		if r.Request != nil && r.Request.Command.Equal(c) {
			select {
			case rs <- r:
			default:
			}
		}
	})()

	// Execute
	if !ctrl.Execute(c) {
		return
	}

	// Wait
	select {
	case r = <-rs:
	case <-time.After(c.Timeout() + time.Second):
		err = fmt.Errorf("main: no response to '%s' after %s", c, c.Timeout())
	}
	return
}

func printResponse(c astidrone.Command, r *astidrone.Response) {
	switch {
	case r == nil:
		fmt.Printf("%-24s not sent\n", c)
	case !r.Success:
		fmt.Printf("%-24s failed after %s: %s\n", c, r.Elapsed, r.Err)
	default:
		fmt.Printf("%-24s %s (%s)\n", c, r.Message, r.Elapsed)
	}
}
