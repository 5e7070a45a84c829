package astidrone

import (
	"context"
	"fmt"
	"sync"

	"github.com/asticode/go-astilog"
	astievent "github.com/asticode/go-astitools/event"
	"github.com/pkg/errors"
)

// Events
const (
	ConnectionStateEvent = "connection.state"
	LandEvent            = "land"
	PositionEvent        = "position"
	ProtocolErrorEvent   = "protocol.error"
	ResponseEvent        = "response"
	StateEvent           = "state"
	TakeOffEvent         = "take.off"
	VideoPacketEvent     = "video.packet"
	VideoStreamingEvent  = "video.streaming"
)

// Drone wires a flight controller to the drone's UDP ports and dispatches what happens as named
// events
type Drone struct {
	cancel       context.CancelFunc
	ctrl         *FlightController
	ctx          context.Context
	d            *astievent.Dispatcher
	l            *UDPLink
	mr           *sync.Mutex // Locks receivers
	oc           *sync.Once  // Limits Close()
	ol           *sync.Once  // Limits Disconnect()
	oo           *sync.Once  // Limits Start()
	so           *StateObserver
	sr           *UDPReceiver
	unsubscribes []func()
	vo           *VideoObserver
	vr           *UDPReceiver
}

// New creates a new drone. Nothing is sent until Connect is called.
func New(c Configuration) *Drone {
	// Create drone
	l := NewUDPLink(c.UDPLinkOptions())
	d := &Drone{
		ctrl: NewFlightController(NewLinkTransceiver(l), c.ControllerOptions()),
		d:    astievent.NewDispatcher(),
		l:    l,
		mr:   &sync.Mutex{},
		oc:   &sync.Once{},
		ol:   &sync.Once{},
		oo:   &sync.Once{},
		sr:   NewUDPReceiver(c.StateAddr),
		vr:   NewUDPReceiver(c.VideoAddr),
	}
	d.so = NewStateObserver(d.sr)
	d.vo = NewVideoObserver(d.vr)

	// Forward
	d.unsubscribes = append(d.unsubscribes,
		d.ctrl.OnConnectionStateChanged(d.handleConnectionState),
		d.ctrl.OnPositionChanged(func(p Position) { d.d.Dispatch(PositionEvent, p) }),
		d.ctrl.OnProtocolError(func(e *ProtocolError) { d.d.Dispatch(ProtocolErrorEvent, e) }),
		d.ctrl.OnResponseReceived(d.handleResponse),
		d.ctrl.OnVideoStreamingStateChanged(func(v bool) { d.d.Dispatch(VideoStreamingEvent, v) }),
		d.so.OnState(d.handleState),
		d.vo.OnSegment(func(b []byte) { d.d.Dispatch(VideoPacketEvent, b) }),
	)
	return d
}

// Controller returns the flight controller
func (d *Drone) Controller() *FlightController { return d.ctrl }

// On adds an event handler
func (d *Drone) On(name string, h astievent.EventHandler) {
	d.d.On(name, h)
}

// State returns the last telemetry frame
func (d *Drone) State() (State, bool) { return d.so.State() }

// VideoSegments returns the video segments buffered since the last call
func (d *Drone) VideoSegments() [][]byte { return d.vo.Segments() }

// Start starts the dispatcher and opens the command link without entering SDK mode
func (d *Drone) Start() (err error) {
	// Make sure to execute this only once
	d.oo.Do(func() {
		// Create context
		d.ctx, d.cancel = context.WithCancel(context.Background())

		// Reset once
		d.ol = &sync.Once{}

		// Start dispatcher
		go d.d.Start(d.ctx)

		// Open link
		if err = d.l.Open(); err != nil {
			err = errors.Wrap(err, "astidrone: opening link failed")
			return
		}
	})
	return
}

// Connect starts the drone and enters SDK mode
func (d *Drone) Connect() (err error) {
	// Start
	if err = d.Start(); err != nil {
		return
	}

	// Enter SDK mode
	if s := d.ctrl.Connect(); s != Connected {
		err = fmt.Errorf("astidrone: entering sdk mode failed, connection is %s", s)
		return
	}
	return
}

// Disconnect ends the session and closes the ports
func (d *Drone) Disconnect() {
	// Make sure to execute this only once
	d.ol.Do(func() {
		// End session
		d.ctrl.Disconnect()

		// Stop receivers in case no state change triggered it
		d.stopReceivers()

		// Close link
		d.l.Close()

		// Reset once
		d.oo = &sync.Once{}

		// Cancel context and stop dispatcher
		if d.cancel != nil {
			d.cancel()
		}
		d.d.Stop()
	})
}

// Close disconnects and releases everything. The drone can't be used afterwards.
func (d *Drone) Close() {
	d.oc.Do(func() {
		d.Disconnect()
		for _, u := range d.unsubscribes {
			u()
		}
		d.so.Close()
		d.vo.Close()
		d.ctrl.Close()
		d.d.Reset()
	})
}

func (d *Drone) handleConnectionState(s ConnectionState) {
	// Receivers only make sense while in SDK mode
	switch s {
	case Connected:
		d.startReceivers()
	case Disconnected:
		d.stopReceivers()
	}

	// Dispatch
	d.d.Dispatch(ConnectionStateEvent, s)
}

func (d *Drone) startReceivers() {
	d.mr.Lock()
	defer d.mr.Unlock()
	for _, r := range []*UDPReceiver{d.sr, d.vr} {
		if err := r.Start(); err != nil {
			astilog.Error(errors.Wrapf(err, "astidrone: starting receiver on %s failed", r.addr))
		}
	}
}

func (d *Drone) stopReceivers() {
	d.mr.Lock()
	defer d.mr.Unlock()
	d.sr.Stop()
	d.vr.Stop()
}

func (d *Drone) handleResponse(r *Response) {
	// Dispatch
	d.d.Dispatch(ResponseEvent, r)

	// Flight events
	if !r.Success || r.Message != OkToken {
		return
	}
	switch r.Request.Command.Code() {
	case Takeoff:
		d.d.Dispatch(TakeOffEvent, nil)
	case Land:
		d.d.Dispatch(LandEvent, nil)
	}
}

func (d *Drone) handleState(s State) {
	d.ctrl.UpdateState(s)
	d.d.Dispatch(StateEvent, s)
}

// ConnectionStateEventHandler adapts a connection state handler to an event handler
func ConnectionStateEventHandler(f func(s ConnectionState)) astievent.EventHandler {
	return func(payload interface{}) {
		f(payload.(ConnectionState))
	}
}

// PositionEventHandler adapts a position handler to an event handler
func PositionEventHandler(f func(p Position)) astievent.EventHandler {
	return func(payload interface{}) {
		f(payload.(Position))
	}
}

// ProtocolErrorEventHandler adapts a protocol error handler to an event handler
func ProtocolErrorEventHandler(f func(e *ProtocolError)) astievent.EventHandler {
	return func(payload interface{}) {
		f(payload.(*ProtocolError))
	}
}

// ResponseEventHandler adapts a response handler to an event handler
func ResponseEventHandler(f func(r *Response)) astievent.EventHandler {
	return func(payload interface{}) {
		f(payload.(*Response))
	}
}

// StateEventHandler adapts a state handler to an event handler
func StateEventHandler(f func(s State)) astievent.EventHandler {
	return func(payload interface{}) {
		f(payload.(State))
	}
}

// VideoPacketEventHandler adapts a video packet handler to an event handler
func VideoPacketEventHandler(f func(b []byte)) astievent.EventHandler {
	return func(payload interface{}) {
		f(payload.([]byte))
	}
}

// VideoStreamingEventHandler adapts a video streaming handler to an event handler
func VideoStreamingEventHandler(f func(streaming bool)) astievent.EventHandler {
	return func(payload interface{}) {
		f(payload.(bool))
	}
}
