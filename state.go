package astidrone

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/asticode/go-astilog"
	"github.com/pkg/errors"
)

// State represents the telemetry frame the drone pushes on its state port
type State struct {
	Acceleration       Acceleration // The acceleration
	Attitude           Attitude     // The attitude
	Barometer          float64      // The barometer measurement in cm
	Battery            int          // The percentage of the current battery level
	FlightDistance     int          // The time of flight distance in cm
	FlightTime         int          // The amount of time the motor has been used
	Height             int          // The height in cm
	HighestTemperature int          // The highest temperature in degree Celsius
	LowestTemperature  int          // The lowest temperature in degree Celsius
	Speed              Speed        // The speed
}

// Acceleration represents the drone's acceleration
type Acceleration struct {
	X float64
	Y float64
	Z float64
}

// Attitude represents the drone's attitude
type Attitude struct {
	Pitch int // The degree of the attitude pitch
	Roll  int // The degree of the attitude roll
	Yaw   int // The degree of the attitude yaw
}

// Speed represents the drone's speed
type Speed struct {
	X int
	Y int
	Z int
}

func newState(i string) (s State, err error) {
	var n int
	if n, err = fmt.Sscanf(i, "pitch:%d;roll:%d;yaw:%d;vgx:%d;vgy:%d;vgz:%d;templ:%d;temph:%d;tof:%d;h:%d;bat:%d;baro:%f;time:%d;agx:%f;agy:%f;agz:%f;", &s.Attitude.Pitch, &s.Attitude.Roll, &s.Attitude.Yaw, &s.Speed.X, &s.Speed.Y, &s.Speed.Z, &s.LowestTemperature, &s.HighestTemperature, &s.FlightDistance, &s.Height, &s.Battery, &s.Barometer, &s.FlightTime, &s.Acceleration.X, &s.Acceleration.Y, &s.Acceleration.Z); err != nil {
		err = errors.Wrap(err, "astidrone: scanf failed")
		return
	} else if n != 16 {
		err = fmt.Errorf("astidrone: scanf only parsed %d items, expected 16", n)
		return
	}
	return
}

// StateObserver decodes the frames yielded by a state receiver
type StateObserver struct {
	b           *Broadcaster[State]
	m           *sync.Mutex // Locks s
	s           *State
	unsubscribe func()
}

// NewStateObserver creates a new state observer subscribed to r
func NewStateObserver(r Receiver) *StateObserver {
	o := &StateObserver{
		b: NewBroadcaster[State](),
		m: &sync.Mutex{},
	}
	o.unsubscribe = r.Subscribe(o.handle)
	return o
}

// Close unsubscribes from the receiver
func (o *StateObserver) Close() { o.unsubscribe() }

// OnState subscribes to decoded frames
func (o *StateObserver) OnState(h func(State)) (unsubscribe func()) {
	return o.b.Subscribe(h)
}

// State returns the last decoded frame
func (o *StateObserver) State() (s State, ok bool) {
	o.m.Lock()
	defer o.m.Unlock()
	if o.s == nil {
		return
	}
	return *o.s, true
}

func (o *StateObserver) handle(b []byte) {
	// Create state
	s, err := newState(string(bytes.TrimSpace(b)))
	if err != nil {
		astilog.Error(errors.Wrap(err, "astidrone: creating state failed"))
		return
	}

	// Update state
	o.m.Lock()
	o.s = &s
	o.m.Unlock()

	// Publish
	o.b.Publish(s)
}
