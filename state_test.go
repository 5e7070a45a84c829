package astidrone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	strState      = "pitch:8;roll:9;yaw:10;vgx:11;vgy:12;vgz:13;templ:14;temph:15;tof:16;h:17;bat:18;baro:19.1;time:20;agx:21.1;agy:22.1;agz:23.1;"
	expectedState = State{Acceleration: Acceleration{X: 21.1, Y: 22.1, Z: 23.1}, Attitude: Attitude{Pitch: 8, Roll: 9, Yaw: 10}, Barometer: 19.1, Battery: 18, FlightDistance: 16, FlightTime: 20, Height: 17, HighestTemperature: 15, LowestTemperature: 14, Speed: Speed{X: 11, Y: 12, Z: 13}}
)

// mockedReceiver lets tests push datagrams by hand
type mockedReceiver struct {
	b *Broadcaster[[]byte]
}

func newMockedReceiver() *mockedReceiver {
	return &mockedReceiver{b: NewBroadcaster[[]byte]()}
}

func (r *mockedReceiver) Start() error { return nil }

func (r *mockedReceiver) Stop() {}

func (r *mockedReceiver) Subscribe(h func([]byte)) func() { return r.b.Subscribe(h) }

func (r *mockedReceiver) push(s string) { r.b.Publish([]byte(s)) }

func TestNewState(t *testing.T) {
	s, err := newState(strState)
	assert.Equal(t, expectedState, s)
	assert.NoError(t, err)
	_, err = newState("pitch:8;roll:9;")
	assert.Error(t, err)
}

func TestStateObserver(t *testing.T) {
	r := newMockedReceiver()
	o := NewStateObserver(r)
	var got []State
	o.OnState(func(s State) { got = append(got, s) })

	// No frame yet
	_, ok := o.State()
	assert.False(t, ok)

	// Invalid frames are dropped
	r.push("invalid")
	assert.Empty(t, got)

	// Valid frame
	r.push(strState + "\r\n")
	s, ok := o.State()
	assert.True(t, ok)
	assert.Equal(t, expectedState, s)
	assert.Equal(t, []State{expectedState}, got)

	// Close
	o.Close()
	assert.Equal(t, 0, r.b.Len())
}
