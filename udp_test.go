package astidrone

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// droneDouble listens like the drone's command port and answers each command with the output of h
type droneDouble struct {
	cancel context.CancelFunc
	cmds   []string
	conn   *net.UDPConn
	h      func(cmd string) string
	m      *sync.Mutex // Locks cmds and h
	t      *testing.T
	wg     *sync.WaitGroup
}

func newDroneDouble(t *testing.T, h func(cmd string) string) *droneDouble {
	// Create double
	d := &droneDouble{
		h:  h,
		m:  &sync.Mutex{},
		t:  t,
		wg: &sync.WaitGroup{},
	}

	// Listen
	laddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	d.conn, err = net.ListenUDP("udp", laddr)
	require.NoError(t, err)

	// Read
	var ctx context.Context
	ctx, d.cancel = context.WithCancel(context.Background())
	d.wg.Add(1)
	go d.read(ctx)
	t.Cleanup(d.close)
	return d
}

func (d *droneDouble) read(ctx context.Context) {
	defer d.wg.Done()
	for {
		// Check context
		if ctx.Err() != nil {
			return
		}

		// Read
		b := make([]byte, 2048)
		n, addr, err := d.conn.ReadFromUDP(b)
		if err != nil {
			if ctx.Err() == nil {
				d.t.Log(errors.Wrap(err, "test: reading failed"))
			}
			continue
		}

		// Append
		cmd := string(b[:n])
		d.m.Lock()
		d.cmds = append(d.cmds, cmd)
		h := d.h
		d.m.Unlock()

		// Handle
		if h == nil {
			continue
		}
		if r := h(cmd); r != "" {
			if _, err = d.conn.WriteToUDP([]byte(r), addr); err != nil {
				d.t.Log(errors.Wrap(err, "test: writing failed"))
			}
		}
	}
}

func (d *droneDouble) close() {
	d.cancel()
	d.conn.Close()
	d.wg.Wait()
}

func (d *droneDouble) addr() string { return d.conn.LocalAddr().String() }

func (d *droneDouble) commands() []string {
	d.m.Lock()
	defer d.m.Unlock()
	return append([]string(nil), d.cmds...)
}

func (d *droneDouble) setHandler(h func(cmd string) string) {
	d.m.Lock()
	defer d.m.Unlock()
	d.h = h
}

// okHandler answers like a cooperative drone
func okHandler(cmd string) string {
	switch cmd {
	case "speed?":
		return "100.0"
	case "battery?":
		return "87"
	case "time?":
		return "12s"
	case "wifi?":
		return "90"
	case "sdk?":
		return "20"
	case "sn?":
		return "0TQDG44EDBNYXK"
	}
	return OkToken
}

func newTestUDPLink(t *testing.T, d *droneDouble, o UDPLinkOptions) *UDPLink {
	o.Addr = d.addr()
	o.LocalAddr = "127.0.0.1:0"
	l := NewUDPLink(o)
	require.NoError(t, l.Open())
	t.Cleanup(l.Close)
	return l
}

func TestUDPLinkExchange(t *testing.T) {
	d := newDroneDouble(t, okHandler)
	l := newTestUDPLink(t, d, UDPLinkOptions{})

	// Ok
	msg, err := l.Exchange(context.Background(), NewRequest(MustNewCommand(EnterSdkMode)))
	assert.NoError(t, err)
	assert.Equal(t, OkToken, msg)

	// Query
	msg, err = l.Exchange(context.Background(), NewRequest(MustNewCommand(GetSpeed)))
	assert.NoError(t, err)
	assert.Equal(t, "100.0", msg)

	// Fire and forget
	msg, err = l.Exchange(context.Background(), NewRequest(MustNewCommand(SetRemoteControl, 1, 2, 3, 4)))
	assert.NoError(t, err)
	assert.Empty(t, msg)

	// Commands
	assert.Eventually(t, func() bool { return len(d.commands()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"command", "speed?", "rc 1 2 3 4"}, d.commands())
}

func TestUDPLinkTimeout(t *testing.T) {
	d := newDroneDouble(t, nil)
	l := newTestUDPLink(t, d, UDPLinkOptions{Attempts: 3, MaxTimeout: 10 * time.Millisecond})

	// Only timeouts are retried
	_, err := l.Exchange(context.Background(), NewRequest(MustNewCommand(GetBattery)))
	assert.Equal(t, context.DeadlineExceeded, errors.Cause(err))
	assert.Eventually(t, func() bool { return len(d.commands()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"battery?", "battery?", "battery?"}, d.commands())

	// Timed out waiters are removed
	d.setHandler(okHandler)
	msg, err := l.Exchange(context.Background(), NewRequest(MustNewCommand(GetSdkVersion)))
	assert.NoError(t, err)
	assert.Equal(t, "20", msg)
}

func TestUDPLinkReopen(t *testing.T) {
	d := newDroneDouble(t, nil)
	l := newTestUDPLink(t, d, UDPLinkOptions{})

	// Exchange pending when the link closes
	errs := make(chan error, 1)
	go func() {
		_, err := l.Exchange(context.Background(), NewRequest(MustNewCommand(GetBattery)))
		errs <- err
	}()
	assert.Eventually(t, func() bool { return len(d.commands()) == 1 }, time.Second, time.Millisecond)
	l.Close()
	select {
	case err := <-errs:
		assert.Equal(t, ErrNotConnected, err)
	case <-time.After(time.Second):
		require.Fail(t, "exchange didn't return")
	}
	l.mw.Lock()
	assert.Empty(t, l.ws)
	l.mw.Unlock()

	// Next session gets its own reply
	d.setHandler(okHandler)
	require.NoError(t, l.Open())
	msg, err := l.Exchange(context.Background(), NewRequest(MustNewCommand(EnterSdkMode)))
	assert.NoError(t, err)
	assert.Equal(t, OkToken, msg)
}

func TestUDPLinkCanceled(t *testing.T) {
	d := newDroneDouble(t, okHandler)
	l := newTestUDPLink(t, d, UDPLinkOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Exchange(ctx, NewRequest(MustNewCommand(Takeoff)))
	assert.Equal(t, ErrCanceled, err)
	assert.Empty(t, d.commands())
}

func TestUDPLinkNotConnected(t *testing.T) {
	l := NewUDPLink(UDPLinkOptions{})
	_, err := l.Exchange(context.Background(), NewRequest(MustNewCommand(Takeoff)))
	assert.Equal(t, ErrNotConnected, err)
	assert.Nil(t, l.LocalAddr())
}

func TestUDPReceiver(t *testing.T) {
	// Start
	r := NewUDPReceiver("127.0.0.1:0")
	require.NoError(t, r.Start())
	defer r.Stop()
	require.NotNil(t, r.LocalAddr())

	// Subscribe
	m := &sync.Mutex{}
	var got []string
	r.Subscribe(func(b []byte) {
		m.Lock()
		defer m.Unlock()
		got = append(got, string(b))
	})
	r.Subscribe(func([]byte) { panic("test") })

	// Write
	conn, err := net.Dial("udp", r.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("1"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("2"))
	require.NoError(t, err)

	// A panicking subscriber doesn't stop the loop
	assert.Eventually(t, func() bool {
		m.Lock()
		defer m.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"1", "2"}, got)

	// Stop
	r.Stop()
	assert.Nil(t, r.LocalAddr())
}
