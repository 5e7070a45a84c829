package astidrone

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// mockedTransceiver records what it sends and answers with f
type mockedTransceiver struct {
	cancels int
	f       func(r *Request) *Response
	m       *sync.Mutex // Locks cancels and sent
	sent    []string
}

func newMockedTransceiver(f func(r *Request) *Response) *mockedTransceiver {
	if f == nil {
		f = func(r *Request) *Response { return newResponse(r, OkToken, 0) }
	}
	return &mockedTransceiver{
		f: f,
		m: &sync.Mutex{},
	}
}

func (t *mockedTransceiver) Send(r *Request) *Response {
	t.m.Lock()
	t.sent = append(t.sent, r.Command.String())
	t.m.Unlock()
	return t.f(r)
}

func (t *mockedTransceiver) CancelPending() {
	t.m.Lock()
	defer t.m.Unlock()
	t.cancels++
}

func (t *mockedTransceiver) Sent() []string {
	t.m.Lock()
	defer t.m.Unlock()
	return append([]string(nil), t.sent...)
}

func (t *mockedTransceiver) Cancels() int {
	t.m.Lock()
	defer t.m.Unlock()
	return t.cancels
}

func TestMessengerQueue(t *testing.T) {
	// Only one request in flight at a time
	var inFlight, maxInFlight int
	m := &sync.Mutex{}
	tr := newMockedTransceiver(func(r *Request) *Response {
		m.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		m.Unlock()
		time.Sleep(5 * time.Millisecond)
		m.Lock()
		inFlight--
		m.Unlock()
		return newResponse(r, OkToken, 0)
	})
	ms := NewMessenger(tr)
	defer ms.Close()

	// Collect responses
	var got []string
	ms.OnResponse(func(r *Response) {
		m.Lock()
		defer m.Unlock()
		got = append(got, r.Request.Command.String())
	})

	// Send
	for _, c := range []Command{MustNewCommand(Takeoff), MustNewCommand(Forward, 50), MustNewCommand(Land)} {
		assert.Nil(t, ms.Send(c))
	}
	assert.Eventually(t, func() bool {
		m.Lock()
		defer m.Unlock()
		return len(got) == 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"takeoff", "forward 50", "land"}, got)
	assert.Equal(t, []string{"takeoff", "forward 50", "land"}, tr.Sent())
	assert.Equal(t, 1, maxInFlight)
	assert.Equal(t, 0, ms.Len())
}

func TestMessengerImmediate(t *testing.T) {
	// Block the queue
	unblock := make(chan struct{})
	tr := newMockedTransceiver(func(r *Request) *Response {
		if r.Command.Code() == Takeoff {
			<-unblock
		}
		return newResponse(r, OkToken, 0)
	})
	ms := NewMessenger(tr)
	defer ms.Close()
	defer close(unblock)
	ms.Send(MustNewCommand(Takeoff))
	ms.Send(MustNewCommand(Land))
	assert.Eventually(t, func() bool { return len(tr.Sent()) == 1 }, time.Second, time.Millisecond)

	// Immediate commands bypass the queue and return their response
	resp := ms.Send(MustNewCommand(EmergencyStop))
	if assert.NotNil(t, resp) {
		assert.True(t, resp.Success)
		assert.Equal(t, EmergencyStop, resp.Request.Command.Code())
	}
	assert.Equal(t, []string{"takeoff", "emergency"}, tr.Sent())
	assert.Equal(t, 1, ms.Len())
}

func TestMessengerReset(t *testing.T) {
	// Block the queue
	unblock := make(chan struct{})
	tr := newMockedTransceiver(func(r *Request) *Response {
		if r.Command.Code() == Takeoff {
			<-unblock
		}
		return newResponse(r, OkToken, 0)
	})
	ms := NewMessenger(tr)
	defer ms.Close()
	ms.Send(MustNewCommand(Takeoff))
	ms.Send(MustNewCommand(Forward, 50))
	ms.Send(MustNewCommand(Land))
	assert.Eventually(t, func() bool { return len(tr.Sent()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, ms.Len())

	// Reset
	ms.Reset()
	assert.Equal(t, 0, ms.Len())
	assert.Equal(t, 1, tr.Cancels())

	// Discarded requests are never sent
	close(unblock)
	ms.Send(MustNewCommand(Stop))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, []string{"takeoff", "stop"}, tr.Sent())
}

func TestMessengerPanic(t *testing.T) {
	tr := newMockedTransceiver(func(r *Request) *Response {
		if r.Command.Code() == Takeoff {
			panic("test")
		}
		return newResponse(r, OkToken, 0)
	})
	ms := NewMessenger(tr)
	defer ms.Close()

	// The drain loop survives
	var n int
	m := &sync.Mutex{}
	ms.OnResponse(func(*Response) {
		m.Lock()
		defer m.Unlock()
		n++
	})
	ms.Send(MustNewCommand(Takeoff))
	ms.Send(MustNewCommand(Land))
	assert.Eventually(t, func() bool {
		m.Lock()
		defer m.Unlock()
		return n == 1
	}, time.Second, time.Millisecond)
}
