package main

import (
	"flag"
	"io"
	"os/exec"
	"time"

	"github.com/asticode/go-astidrone"
	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astilog"
	"github.com/pkg/errors"
)

var configPath = flag.String("c", "", "the config path")

func main() {
	// Set logger
	flag.Parse()
	astilog.SetLogger(astilog.New(astilog.FlagConfig()))

	// Load configuration
	c, err := astidrone.LoadConfiguration(*configPath)
	if err != nil {
		astilog.Error(errors.Wrap(err, "main: loading configuration failed"))
		return
	}

	// Create worker
	w := astikit.NewWorker(astikit.WorkerOptions{Logger: astilog.GetLogger()})

	// Create the drone
	d := astidrone.New(c)
	defer d.Close()
	ctrl := d.Controller()

	// Handle signals
	w.HandleSignals(astikit.TermSignalHandler(func() {
		// Make sure to land on term signal
		ctrl.Land()
	}))

	// Check whether ffmpeg exists on the machine
	var video bool
	if _, err := exec.LookPath("ffmpeg"); err == nil {
		// Execute ffmpeg
		var in io.WriteCloser
		if _, err = astikit.ExecCmd(w, astikit.ExecCmdOptions{
			Args: []string{"-y", "-i", "pipe:0", "example.ts"},
			CmdAdapter: func(cmd *exec.Cmd, h *astikit.ExecHandler) (err error) {
				// Pipe stdin
				if in, err = cmd.StdinPipe(); err != nil {
					err = errors.Wrap(err, "main: piping stdin failed")
					return
				}

				// Handle new video packets
				d.On(astidrone.VideoPacketEvent, astidrone.VideoPacketEventHandler(func(p []byte) {
					// Check status
					if h.Status() != astikit.ExecStatusRunning {
						return
					}

					// Write the packet in stdin
					if _, err := in.Write(p); err != nil {
						astilog.Error(errors.Wrap(err, "main: writing video packet failed"))
						return
					}
				}))
				return
			},
			Name: "ffmpeg",
		}); err != nil {
			astilog.Error(errors.Wrap(err, "main: executing ffmpeg failed"))
			return
		}
		defer in.Close()

		// Update
		video = true
	} else {
		// Log
		astilog.Info("main: ffmpeg was not found, video won't be started")
	}

	// Handle events
	d.On(astidrone.TakeOffEvent, func(interface{}) { astilog.Warn("main: drone has took off!") })
	d.On(astidrone.LandEvent, func(interface{}) {
		astilog.Warn("main: drone has landed!")
		w.Stop()
	})
	d.On(astidrone.PositionEvent, astidrone.PositionEventHandler(func(p astidrone.Position) {
		astilog.Infof("main: position is %s", p)
	}))
	d.On(astidrone.ProtocolErrorEvent, astidrone.ProtocolErrorEventHandler(func(e *astidrone.ProtocolError) {
		astilog.Error(errors.Wrap(e, "main: drone didn't acknowledge command"))
	}))

	// Connect to the drone
	if err := d.Connect(); err != nil {
		astilog.Error(errors.Wrap(err, "main: connecting to the drone failed"))
		return
	}

	// Execute in a task
	w.NewTask().Do(func() {
		// Start video
		if video {
			ctrl.StartVideo()
		}

		// Take off
		ctrl.TakeOff()

		// Maneuvers are ignored until the drone is airborne
		for start := time.Now(); !ctrl.IsFlying(); time.Sleep(100 * time.Millisecond) {
			if time.Since(start) > 20*time.Second {
				astilog.Error(errors.New("main: drone didn't take off"))
				w.Stop()
				return
			}
		}

		// Flip
		if err := ctrl.Flip(astidrone.DirectionRight); err != nil {
			astilog.Error(errors.Wrap(err, "main: flipping failed"))
			ctrl.Land()
			return
		}

		// Fly a triangle
		if err := ctrl.FlyPolygon(3, 100, 50, astidrone.Clockwise); err != nil {
			astilog.Error(errors.Wrap(err, "main: flying triangle failed"))
			ctrl.Land()
			return
		}

		// Log state
		if s, ok := d.State(); ok {
			astilog.Infof("main: state is: %+v", s)
		}

		// Stop video
		if video {
			ctrl.StopVideo()
		}

		// Land
		ctrl.Land()
	})

	// Wait
	w.Wait()
}
