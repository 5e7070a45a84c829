package astidrone

import (
	"context"
	"fmt"
	"sync"

	"github.com/asticode/go-astilog"
)

// Messenger dispatches commands to a transceiver. Immediate commands are sent right away, other
// commands are queued and sent one at a time, in submission order, by a background goroutine.
type Messenger struct {
	cancel context.CancelFunc
	ctx    context.Context
	mq     *sync.Mutex // Locks q
	oc     *sync.Once  // Limits Close()
	q      []*Request
	rs     *Broadcaster[*Response]
	sig    chan struct{}
	t      Transceiver
	wg     *sync.WaitGroup
}

// NewMessenger creates a new messenger and starts its drain loop
func NewMessenger(t Transceiver) *Messenger {
	m := &Messenger{
		mq:  &sync.Mutex{},
		oc:  &sync.Once{},
		rs:  NewBroadcaster[*Response](),
		sig: make(chan struct{}, 1),
		t:   t,
		wg:  &sync.WaitGroup{},
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.drain()
	return m
}

// Close stops the drain loop. Queued requests are discarded.
func (m *Messenger) Close() {
	m.oc.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

// OnResponse subscribes to responses of queued commands
func (m *Messenger) OnResponse(h func(*Response)) (unsubscribe func()) {
	return m.rs.Subscribe(h)
}

// Send sends an immediate command and returns its response, or queues any other command and
// returns nil: the response of a queued command is only available through OnResponse.
func (m *Messenger) Send(c Command) *Response {
	r := NewRequest(c)
	if c.Immediate() {
		return m.SendImmediate(r)
	}
	m.Enqueue(r)
	return nil
}

// SendImmediate sends a request bypassing the queue
func (m *Messenger) SendImmediate(r *Request) *Response {
	astilog.Debugf("astidrone: sending immediate '%s'", r.Command)
	return m.t.Send(r)
}

// Enqueue appends a request to the queue
func (m *Messenger) Enqueue(r *Request) {
	// Append
	m.mq.Lock()
	m.q = append(m.q, r)
	l := len(m.q)
	m.mq.Unlock()

	// Log
	astilog.Debugf("astidrone: queued '%s', queue is %d deep", r.Command, l)

	// Signal
	select {
	case m.sig <- struct{}{}:
	default:
	}
}

// Len returns the number of queued requests
func (m *Messenger) Len() int {
	m.mq.Lock()
	defer m.mq.Unlock()
	return len(m.q)
}

// Reset discards queued requests and cancels pending transmissions
func (m *Messenger) Reset() {
	// Discard queue
	m.mq.Lock()
	n := len(m.q)
	m.q = nil
	m.mq.Unlock()

	// Log
	if n > 0 {
		astilog.Debugf("astidrone: discarded %d queued request(s)", n)
	}

	// Cancel
	m.t.CancelPending()
}

func (m *Messenger) dequeue() (r *Request) {
	m.mq.Lock()
	defer m.mq.Unlock()
	if len(m.q) == 0 {
		return
	}
	r = m.q[0]
	m.q[0] = nil
	m.q = m.q[1:]
	return
}

func (m *Messenger) drain() {
	defer m.wg.Done()
	for {
		// Check context
		if m.ctx.Err() != nil {
			return
		}

		// Dequeue
		r := m.dequeue()
		if r == nil {
			select {
			case <-m.sig:
			case <-m.ctx.Done():
				return
			}
			continue
		}

		// Process
		m.process(r)
	}
}

func (m *Messenger) process(r *Request) {
	// Handle panics so that the loop keeps running
	defer func() {
		if v := recover(); v != nil {
			astilog.Error(fmt.Errorf("astidrone: processing '%s' panicked: %v", r.Command, v))
		}
	}()

	// Send
	astilog.Debugf("astidrone: sending queued '%s' with timeout %s", r.Command, r.Command.Timeout())
	resp := m.t.Send(r)
	astilog.Debugf("astidrone: '%s' returned success=%v message='%s' after %s", r.Command, resp.Success, resp.Message, resp.Elapsed)

	// Publish
	m.rs.Publish(resp)
}
