package astidrone

import (
	"math"

	"github.com/pkg/errors"
)

// Polygon limits
const (
	MinPolygonSides = 3
	MaxPolygonSides = 15
)

// Execute sends an already built command if the gate its rule implies is open, and returns
// whether it has been sent. Unsafe commands are ignored rather than reported.
func (c *FlightController) Execute(cmd Command) (sent bool) {
	switch cmd.Code() {
	case EnterSdkMode:
		// Only a disconnected controller sends it
		if c.ConnectionState() != Disconnected {
			return false
		}
		c.Connect()
		return true
	case EmergencyStop:
		c.emergencyStop(cmd)
		return true
	}
	if !c.allowed(cmd) {
		return false
	}
	c.dispatch(cmd)
	return true
}

func (c *FlightController) allowed(cmd Command) bool {
	c.ms.Lock()
	defer c.ms.Unlock()
	switch r := cmd.rule; {
	case r.Response != ResponseOk && r.Response != ResponseNone:
		// Queries are always allowed
		return true
	case r.Code == Takeoff:
		return c.canTakeoff()
	case r.MustBeInFlight:
		return c.canManeuver()
	case c.o.Policy == FlightGating && r.Code == StartVideo:
		return c.state == Connected && !c.videoStreaming
	case c.o.Policy == FlightGating && r.Code == StopVideo:
		return c.state == Connected && c.videoStreaming
	}
	return c.state == Connected
}

func (c *FlightController) dispatch(cmd Command) {
	if r := c.m.Send(cmd); r != nil {
		c.handleResponse(r)
	}
}

func (c *FlightController) run(code CommandCode, args ...interface{}) (err error) {
	// Build first so that invalid arguments are always reported
	var cmd Command
	if cmd, err = NewCommand(code, args...); err != nil {
		return
	}

	// Execute
	c.Execute(cmd)
	return
}

func (c *FlightController) emergencyStop(cmd Command) {
	// Send
	r := c.m.Send(cmd)
	if r == nil {
		return
	}
	c.handleResponse(r)

	// Only an acknowledged stop ends the session
	if c.o.Policy == FlightGating && r.Success && r.Message == OkToken {
		c.Disconnect()
	}
}

// TakeOff takes off
func (c *FlightController) TakeOff() { c.run(Takeoff) }

// Land lands
func (c *FlightController) Land() { c.run(Land) }

// Stop hovers in place
func (c *FlightController) Stop() { c.run(Stop) }

// EmergencyStop stops the motors immediately. It's never gated.
func (c *FlightController) EmergencyStop() { c.run(EmergencyStop) }

// GoUp climbs by cm, between 20 and 500
func (c *FlightController) GoUp(cm int) error { return c.run(Up, cm) }

// GoDown descends by cm, between 20 and 500
func (c *FlightController) GoDown(cm int) error { return c.run(Down, cm) }

// GoLeft moves left by cm, between 20 and 500
func (c *FlightController) GoLeft(cm int) error { return c.run(Left, cm) }

// GoRight moves right by cm, between 20 and 500
func (c *FlightController) GoRight(cm int) error { return c.run(Right, cm) }

// GoForward moves forward by cm, between 20 and 500
func (c *FlightController) GoForward(cm int) error { return c.run(Forward, cm) }

// GoBackward moves backward by cm, between 20 and 500
func (c *FlightController) GoBackward(cm int) error { return c.run(Back, cm) }

// TurnClockwise turns by degrees, between 1 and 360
func (c *FlightController) TurnClockwise(degrees int) error { return c.run(ClockwiseTurn, degrees) }

// TurnCounterClockwise turns by degrees, between 1 and 360
func (c *FlightController) TurnCounterClockwise(degrees int) error {
	return c.run(CounterClockwiseTurn, degrees)
}

// TurnLeft is an alias of TurnCounterClockwise
func (c *FlightController) TurnLeft(degrees int) error { return c.TurnCounterClockwise(degrees) }

// TurnRight is an alias of TurnClockwise
func (c *FlightController) TurnRight(degrees int) error { return c.TurnClockwise(degrees) }

// Turn turns by degrees in direction d
func (c *FlightController) Turn(d ClockDirection, degrees int) error {
	if d == CounterClockwise {
		return c.TurnCounterClockwise(degrees)
	}
	return c.TurnClockwise(degrees)
}

// Go flies to x, y, z (in cm, relative to the drone) at speed cm/s
func (c *FlightController) Go(x, y, z, speed int) error { return c.run(Go, x, y, z, speed) }

// Curve flies a curve through x1, y1, z1 to x2, y2, z2 at speed cm/s
func (c *FlightController) Curve(x1, y1, z1, x2, y2, z2, speed int) error {
	return c.run(Curve, x1, y1, z1, x2, y2, z2, speed)
}

// Flip flips in direction d
func (c *FlightController) Flip(d Direction) error { return c.run(Flip, d.Flip()) }

// SetRemoteControl sets the 4 channels of the remote control, each between -100 and 100
func (c *FlightController) SetRemoteControl(leftRight, forwardBackward, upDown, yaw int) error {
	return c.run(SetRemoteControl, leftRight, forwardBackward, upDown, yaw)
}

// SetHeight climbs or descends to cm, based on the last telemetry frame. It's a no-op when
// there's no telemetry or when the delta is not between 20 and 500.
func (c *FlightController) SetHeight(cm int) error {
	// Get height
	c.ms.Lock()
	t := c.telemetry
	c.ms.Unlock()
	if t == nil {
		return nil
	}

	// Get delta
	delta := cm - t.Height
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	if abs < 20 || abs > 500 {
		return nil
	}

	// Move
	if delta < 0 {
		return c.GoDown(abs)
	}
	return c.GoUp(abs)
}

// FlyPolygon flies a polygon of sides sides of length cm each, at speed cm/s, turning in
// direction d. Nothing is sent when any argument is invalid.
func (c *FlightController) FlyPolygon(sides, length, speed int, d ClockDirection) (err error) {
	// Check sides
	if sides < MinPolygonSides || sides > MaxPolygonSides {
		err = errors.Wrapf(ErrArgumentRange, "astidrone: %d sides not in [%d, %d]", sides, MinPolygonSides, MaxPolygonSides)
		return
	}

	// Build commands
	turnCode := ClockwiseTurn
	if d == CounterClockwise {
		turnCode = CounterClockwiseTurn
	}
	var speedCmd, forwardCmd, turnCmd Command
	if speedCmd, err = NewCommand(SetSpeed, speed); err != nil {
		return
	}
	if forwardCmd, err = NewCommand(Forward, length); err != nil {
		return
	}
	if turnCmd, err = NewCommand(turnCode, int(math.Round(360/float64(sides)))); err != nil {
		return
	}

	// Check gate
	if !c.CanManeuver() {
		return
	}

	// Execute
	c.Execute(speedCmd)
	for i := 0; i < sides; i++ {
		c.Execute(forwardCmd)
		c.Execute(turnCmd)
	}
	return
}

// SetSpeed sets the speed in cm/s, between 10 and 100
func (c *FlightController) SetSpeed(speed int) error { return c.run(SetSpeed, speed) }

// SetStationMode makes the drone join the access point ssid
func (c *FlightController) SetStationMode(ssid, password string) error {
	return c.run(SetStationMode, ssid, password)
}

// SetWifiPassword changes the drone's own access point credentials
func (c *FlightController) SetWifiPassword(ssid, password string) error {
	return c.run(SetWifiPassword, ssid, password)
}

// StartVideo turns the video stream on
func (c *FlightController) StartVideo() { c.run(StartVideo) }

// StopVideo turns the video stream off
func (c *FlightController) StopVideo() { c.run(StopVideo) }

// GetBattery queries the battery percentage
func (c *FlightController) GetBattery() { c.run(GetBattery) }

// GetSpeed queries the speed
func (c *FlightController) GetSpeed() { c.run(GetSpeed) }

// GetTime queries the flight time
func (c *FlightController) GetTime() { c.run(GetTime) }

// GetWifiSnr queries the wifi signal-to-noise ratio
func (c *FlightController) GetWifiSnr() { c.run(GetWifiSnr) }

// GetSdkVersion queries the SDK version
func (c *FlightController) GetSdkVersion() { c.run(GetSdkVersion) }

// GetSerialNumber queries the serial number
func (c *FlightController) GetSerialNumber() { c.run(GetSerialNumber) }
