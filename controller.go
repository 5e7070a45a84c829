package astidrone

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/asticode/go-astilog"
	"github.com/pkg/errors"
)

// Protocol errors
var (
	ErrErrorResponse      = errors.New("astidrone: drone returned an error")
	ErrHandlerPanic       = errors.New("astidrone: response handler panicked")
	ErrInvalidValue       = errors.New("astidrone: invalid value")
	ErrTransportFailure   = errors.New("astidrone: transport failure")
	ErrUnexpectedResponse = errors.New("astidrone: unexpected response")
)

// DefaultKeepAliveInterval is below the ~15s of silence after which the drone lands on its own
const DefaultKeepAliveInterval = 10 * time.Second

// ConnectionState is the state of the SDK mode session
type ConnectionState int

// Connection states
const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("ConnectionState(%d)", int(s))
}

// Policy decides which commands the controller lets through
type Policy int

// Policies
const (
	// FlightGating requires the drone to be connected and airborne to maneuver, connected and
	// landed to take off. An emergency stop ends the session.
	FlightGating Policy = iota
	// ConnectionGating only requires the drone to be connected
	ConnectionGating
)

func (p Policy) String() string {
	switch p {
	case FlightGating:
		return "flight"
	case ConnectionGating:
		return "connection"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses the output of Policy.String()
func ParsePolicy(s string) (p Policy, err error) {
	switch strings.ToLower(s) {
	case "", "flight":
		p = FlightGating
	case "connection":
		p = ConnectionGating
	default:
		err = fmt.Errorf("astidrone: unknown policy %q", s)
	}
	return
}

// ProtocolError is raised when a response can't be interpreted
type ProtocolError struct {
	Command   Command
	Elapsed   time.Duration
	Err       error
	Kind      error
	Message   string
	Timestamp time.Time
}

func newProtocolError(r *Response, kind, err error) *ProtocolError {
	e := &ProtocolError{
		Elapsed:   r.Elapsed,
		Err:       err,
		Kind:      kind,
		Message:   r.Message,
		Timestamp: r.Timestamp,
	}
	if r.Request != nil {
		e.Command = r.Request.Command
	}
	return e
}

func (e *ProtocolError) Error() string {
	s := fmt.Sprintf("%s: '%s' returned message '%s' at %s after %s", e.Kind, e.Command, e.Message, e.Timestamp.Format(time.RFC3339Nano), e.Elapsed)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ProtocolError) Unwrap() []error {
	var es []error
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			es = append(es, err)
		}
	}
	return es
}

// ControllerOptions configures a FlightController
type ControllerOptions struct {
	KeepAliveInterval time.Duration
	Policy            Policy
}

// FlightController turns the response stream of a messenger into derived flight state and gates
// the commands it sends
type FlightController struct {
	cancelKeepAlive context.CancelFunc
	flying          bool
	interrogative   InterrogativeState
	m               *Messenger
	ms              *sync.Mutex // Locks state fields
	o               ControllerOptions
	oc              *sync.Once // Limits Close()
	position        Position
	state           ConnectionState
	telemetry       *State
	unsubscribe     func()
	videoStreaming  bool
	wg              *sync.WaitGroup

	connectionStates *Broadcaster[ConnectionState]
	positions        *Broadcaster[Position]
	protocolErrors   *Broadcaster[*ProtocolError]
	responses        *Broadcaster[*Response]
	videoStreamings  *Broadcaster[bool]
}

// NewFlightController creates a new flight controller sending its commands through t
func NewFlightController(t Transceiver, o ControllerOptions) *FlightController {
	if o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = DefaultKeepAliveInterval
	}
	c := &FlightController{
		m:                NewMessenger(t),
		ms:               &sync.Mutex{},
		o:                o,
		oc:               &sync.Once{},
		wg:               &sync.WaitGroup{},
		connectionStates: NewBroadcaster[ConnectionState](),
		positions:        NewBroadcaster[Position](),
		protocolErrors:   NewBroadcaster[*ProtocolError](),
		responses:        NewBroadcaster[*Response](),
		videoStreamings:  NewBroadcaster[bool](),
	}
	c.unsubscribe = c.m.OnResponse(c.handleResponse)
	return c
}

// Close disconnects and stops background goroutines
func (c *FlightController) Close() {
	c.oc.Do(func() {
		c.Disconnect()
		c.unsubscribe()
		c.m.Close()
		c.wg.Wait()
	})
}

// Messenger returns the underlying messenger
func (c *FlightController) Messenger() *Messenger { return c.m }

// Policy returns the gating policy
func (c *FlightController) Policy() Policy { return c.o.Policy }

// OnConnectionStateChanged subscribes to connection state changes
func (c *FlightController) OnConnectionStateChanged(h func(ConnectionState)) (unsubscribe func()) {
	return c.connectionStates.Subscribe(h)
}

// OnPositionChanged subscribes to position changes
func (c *FlightController) OnPositionChanged(h func(Position)) (unsubscribe func()) {
	return c.positions.Subscribe(h)
}

// OnProtocolError subscribes to protocol errors
func (c *FlightController) OnProtocolError(h func(*ProtocolError)) (unsubscribe func()) {
	return c.protocolErrors.Subscribe(h)
}

// OnResponseReceived subscribes to every handled response
func (c *FlightController) OnResponseReceived(h func(*Response)) (unsubscribe func()) {
	return c.responses.Subscribe(h)
}

// OnVideoStreamingStateChanged subscribes to video streaming state changes
func (c *FlightController) OnVideoStreamingStateChanged(h func(bool)) (unsubscribe func()) {
	return c.videoStreamings.Subscribe(h)
}

// ConnectionState returns the connection state
func (c *FlightController) ConnectionState() ConnectionState {
	c.ms.Lock()
	defer c.ms.Unlock()
	return c.state
}

// Position returns the derived position
func (c *FlightController) Position() Position {
	c.ms.Lock()
	defer c.ms.Unlock()
	return c.position
}

// InterrogativeState returns the last queried values
func (c *FlightController) InterrogativeState() InterrogativeState {
	c.ms.Lock()
	defer c.ms.Unlock()
	return c.interrogative
}

// IsFlying indicates whether the last takeoff hasn't been followed by a land or an emergency stop
func (c *FlightController) IsFlying() bool {
	c.ms.Lock()
	defer c.ms.Unlock()
	return c.flying
}

// IsVideoStreaming indicates whether the video stream is on
func (c *FlightController) IsVideoStreaming() bool {
	c.ms.Lock()
	defer c.ms.Unlock()
	return c.videoStreaming
}

// CanManeuver indicates whether maneuvers are let through
func (c *FlightController) CanManeuver() bool {
	c.ms.Lock()
	defer c.ms.Unlock()
	return c.canManeuver()
}

func (c *FlightController) canManeuver() bool {
	if c.o.Policy == ConnectionGating {
		return c.state == Connected
	}
	return c.state == Connected && c.flying
}

// CanTakeoff indicates whether a takeoff is let through
func (c *FlightController) CanTakeoff() bool {
	c.ms.Lock()
	defer c.ms.Unlock()
	return c.canTakeoff()
}

func (c *FlightController) canTakeoff() bool {
	if c.o.Policy == ConnectionGating {
		return c.state == Connected
	}
	return c.state == Connected && !c.flying
}

// UpdateState records the last telemetry frame
func (c *FlightController) UpdateState(s State) {
	c.ms.Lock()
	defer c.ms.Unlock()
	c.telemetry = &s
}

// Connect enters SDK mode. It's a no-op unless the controller is disconnected.
func (c *FlightController) Connect() ConnectionState {
	// Only a disconnected controller can connect
	if !c.compareAndSwapState(Disconnected, Connecting) {
		return c.ConnectionState()
	}

	// Discard stale commands from a previous session
	c.m.Reset()

	// Send
	resp := c.m.Send(MustNewCommand(EnterSdkMode))
	if resp != nil {
		c.handleResponse(resp)
	}

	// Update state
	if resp != nil && resp.Success && resp.Message == OkToken {
		c.compareAndSwapState(Connecting, Connected)
	} else {
		c.compareAndSwapState(Connecting, Disconnected)
	}
	return c.ConnectionState()
}

// Disconnect ends the session and discards queued commands. It's a no-op when disconnected.
func (c *FlightController) Disconnect() {
	if c.swapState(Disconnected) == Disconnected {
		return
	}
	c.m.Reset()
}

func (c *FlightController) compareAndSwapState(from, to ConnectionState) bool {
	c.ms.Lock()
	if c.state != from {
		c.ms.Unlock()
		return false
	}
	c.setStateLocked(to)
	c.ms.Unlock()
	c.connectionStates.Publish(to)
	return true
}

func (c *FlightController) swapState(to ConnectionState) (from ConnectionState) {
	c.ms.Lock()
	from = c.state
	if from == to {
		c.ms.Unlock()
		return
	}
	c.setStateLocked(to)
	c.ms.Unlock()
	c.connectionStates.Publish(to)
	return
}

func (c *FlightController) setStateLocked(to ConnectionState) {
	from := c.state
	c.state = to
	astilog.Debugf("astidrone: connection state %s -> %s", from, to)

	// Leaving connected
	if from == Connected && c.cancelKeepAlive != nil {
		c.cancelKeepAlive()
		c.cancelKeepAlive = nil
	}

	// Entering connected
	if to == Connected {
		var ctx context.Context
		ctx, c.cancelKeepAlive = context.WithCancel(context.Background())
		c.wg.Add(1)
		go c.keepAlive(ctx)
	}
}

// keepAlive prevents the drone from landing on its own after a few seconds without commands
func (c *FlightController) keepAlive(ctx context.Context) {
	defer c.wg.Done()
	t := time.NewTicker(c.o.KeepAliveInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if c.ConnectionState() != Connected {
				return
			}
			c.sendKeepAlive()
		}
	}
}

func (c *FlightController) sendKeepAlive() {
	defer func() {
		if v := recover(); v != nil {
			astilog.Error(fmt.Errorf("astidrone: sending keep alive panicked: %v", v))
		}
	}()
	c.GetBattery()
}

func (c *FlightController) handleResponse(r *Response) {
	// Nothing to correlate
	if r == nil || r.Request == nil {
		return
	}

	// Interpret
	if kind, err := c.interpret(r); kind != nil {
		c.raise(newProtocolError(r, kind, err))
	}

	// Publish
	c.responses.Publish(r)
}

func (c *FlightController) raise(e *ProtocolError) {
	astilog.Error(errors.Wrap(e, "astidrone: handling response failed"))
	c.protocolErrors.Publish(e)
}

func (c *FlightController) interpret(r *Response) (kind, err error) {
	// Handle panics
	defer func() {
		if v := recover(); v != nil {
			kind = ErrHandlerPanic
			err = fmt.Errorf("%v", v)
		}
	}()

	// Transport failure
	if !r.Success {
		return ErrTransportFailure, r.Err
	}

	// Error token
	if r.Message == ErrorToken {
		return ErrErrorResponse, nil
	}

	// Switch on response kind
	cmd := r.Request.Command
	switch cmd.rule.Response {
	case ResponseOk:
		if r.Message != OkToken {
			return ErrUnexpectedResponse, fmt.Errorf("expected '%s'", OkToken)
		}
		c.handleOk(cmd)
	case ResponseSpeed:
		var v int
		if v, err = parseSpeed(r.Message); err != nil {
			return ErrInvalidValue, err
		}
		c.updateInterrogative(func(s *InterrogativeState) { s.Speed = v })
	case ResponseBattery:
		var v int
		if v, err = parseInt(r.Message); err != nil {
			return ErrInvalidValue, err
		}
		c.updateInterrogative(func(s *InterrogativeState) { s.Battery = v })
	case ResponseTime:
		var v int
		if v, err = parseTime(r.Message); err != nil {
			return ErrInvalidValue, err
		}
		c.updateInterrogative(func(s *InterrogativeState) { s.Time = v })
	case ResponseWifiSnr:
		c.updateInterrogative(func(s *InterrogativeState) { s.WifiSnr = r.Message })
	case ResponseSdkVersion:
		c.updateInterrogative(func(s *InterrogativeState) { s.SdkVersion = r.Message })
	case ResponseSerialNumber:
		c.updateInterrogative(func(s *InterrogativeState) { s.SerialNumber = r.Message })
	}
	return nil, nil
}

func (c *FlightController) updateInterrogative(f func(s *InterrogativeState)) {
	c.ms.Lock()
	defer c.ms.Unlock()
	f(&c.interrogative)
}

func (c *FlightController) handleOk(cmd Command) {
	switch cmd.Code() {
	case Takeoff:
		c.setFlying(true)
	case Land, EmergencyStop:
		c.setFlying(false)
	case StartVideo:
		c.setVideoStreaming(true)
	case StopVideo:
		c.setVideoStreaming(false)
	case Left:
		c.move(func(p Position) Position { return p.Move(DirectionLeft, cmd.Int(0)) })
	case Right:
		c.move(func(p Position) Position { return p.Move(DirectionRight, cmd.Int(0)) })
	case Forward:
		c.move(func(p Position) Position { return p.Move(DirectionFront, cmd.Int(0)) })
	case Back:
		c.move(func(p Position) Position { return p.Move(DirectionBack, cmd.Int(0)) })
	case Up:
		c.move(func(p Position) Position { return p.Climb(cmd.Int(0)) })
	case Down:
		c.move(func(p Position) Position { return p.Climb(-cmd.Int(0)) })
	case ClockwiseTurn:
		c.move(func(p Position) Position { return p.Turn(Clockwise, cmd.Int(0)) })
	case CounterClockwiseTurn:
		c.move(func(p Position) Position { return p.Turn(CounterClockwise, cmd.Int(0)) })
	case Go:
		c.move(func(p Position) Position { return p.Go(cmd.Int(0), cmd.Int(1), cmd.Int(2)) })
	case SetSpeed:
		c.updateInterrogative(func(s *InterrogativeState) { s.Speed = cmd.Int(0) })
	}
}

func (c *FlightController) setFlying(v bool) {
	c.ms.Lock()
	defer c.ms.Unlock()
	c.flying = v
}

func (c *FlightController) setVideoStreaming(v bool) {
	c.ms.Lock()
	c.videoStreaming = v
	c.ms.Unlock()
	c.videoStreamings.Publish(v)
}

func (c *FlightController) move(f func(p Position) Position) {
	c.ms.Lock()
	c.position = f(c.position)
	p := c.position
	c.ms.Unlock()
	c.positions.Publish(p)
}
