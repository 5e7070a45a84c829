package astidrone

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDrone(t *testing.T, h func(cmd string) string) (*Drone, *droneDouble) {
	dd := newDroneDouble(t, h)
	c := DefaultConfiguration()
	c.CommandAddr = dd.addr()
	c.KeepAliveInterval = time.Minute
	c.LocalCommandAddr = "127.0.0.1:0"
	c.StateAddr = "127.0.0.1:0"
	c.VideoAddr = "127.0.0.1:0"
	d := New(c)
	t.Cleanup(d.Close)
	return d, dd
}

func writeUDP(t *testing.T, addr net.Addr, s string) {
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(s))
	require.NoError(t, err)
}

func TestDrone(t *testing.T) {
	d, dd := newTestDrone(t, okHandler)

	// Events
	m := &sync.Mutex{}
	var states []ConnectionState
	var tookOff, landed bool
	var packets int
	var positions []Position
	d.On(ConnectionStateEvent, ConnectionStateEventHandler(func(s ConnectionState) {
		m.Lock()
		defer m.Unlock()
		states = append(states, s)
	}))
	d.On(TakeOffEvent, func(interface{}) {
		m.Lock()
		defer m.Unlock()
		tookOff = true
	})
	d.On(LandEvent, func(interface{}) {
		m.Lock()
		defer m.Unlock()
		landed = true
	})
	d.On(PositionEvent, PositionEventHandler(func(p Position) {
		m.Lock()
		defer m.Unlock()
		positions = append(positions, p)
	}))
	d.On(VideoPacketEvent, VideoPacketEventHandler(func([]byte) {
		m.Lock()
		defer m.Unlock()
		packets++
	}))
	stateEvents := make(chan State, 1)
	d.On(StateEvent, StateEventHandler(func(s State) {
		select {
		case stateEvents <- s:
		default:
		}
	}))

	// Connect
	require.NoError(t, d.Connect())
	assert.Equal(t, Connected, d.Controller().ConnectionState())
	assert.Eventually(t, func() bool {
		m.Lock()
		defer m.Unlock()
		return len(states) == 2
	}, time.Second, time.Millisecond)
	m.Lock()
	assert.Equal(t, []ConnectionState{Connecting, Connected}, states)
	m.Unlock()

	// State
	require.NotNil(t, d.sr.LocalAddr())
	writeUDP(t, d.sr.LocalAddr(), strState)
	select {
	case s := <-stateEvents:
		assert.Equal(t, expectedState, s)
	case <-time.After(time.Second):
		require.Fail(t, "no state event")
	}
	s, ok := d.State()
	assert.True(t, ok)
	assert.Equal(t, expectedState, s)

	// Video
	require.NotNil(t, d.vr.LocalAddr())
	writeUDP(t, d.vr.LocalAddr(), "packet")
	assert.Eventually(t, func() bool {
		m.Lock()
		defer m.Unlock()
		return packets == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, [][]byte{[]byte("packet")}, d.VideoSegments())

	// Fly
	ctrl := d.Controller()
	ctrl.TakeOff()
	assert.Eventually(t, ctrl.IsFlying, time.Second, time.Millisecond)
	require.NoError(t, ctrl.GoForward(50))
	ctrl.Land()
	assert.Eventually(t, func() bool { return !ctrl.IsFlying() }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		m.Lock()
		defer m.Unlock()
		return tookOff && landed && len(positions) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"command", "takeoff", "forward 50", "land"}, dd.commands())

	// Disconnect
	d.Disconnect()
	assert.Equal(t, Disconnected, ctrl.ConnectionState())
	assert.Nil(t, d.sr.LocalAddr())
	assert.Nil(t, d.vr.LocalAddr())
}

func TestDroneConnectRefused(t *testing.T) {
	d, dd := newTestDrone(t, func(string) string { return ErrorToken })
	errs := make(chan *ProtocolError, 1)
	d.On(ProtocolErrorEvent, ProtocolErrorEventHandler(func(e *ProtocolError) {
		select {
		case errs <- e:
		default:
		}
	}))

	// Connect
	assert.Error(t, d.Connect())
	assert.Equal(t, Disconnected, d.Controller().ConnectionState())
	assert.Nil(t, d.sr.LocalAddr())
	assert.Equal(t, []string{"command"}, dd.commands())
	select {
	case e := <-errs:
		assert.ErrorIs(t, e, ErrErrorResponse)
	case <-time.After(time.Second):
		require.Fail(t, "no protocol error event")
	}

	// Retry
	dd.setHandler(okHandler)
	assert.NoError(t, d.Connect())
	assert.NotNil(t, d.sr.LocalAddr())
}
