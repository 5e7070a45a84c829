package astidrone

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/asticode/go-astilog"
	"github.com/pkg/errors"
)

// Default addresses
const (
	DefaultCommandAddr      = "192.168.10.1:8889"
	DefaultLocalCommandAddr = ":8889"
	DefaultStateAddr        = ":8890"
	DefaultVideoAddr        = ":11111"
)

// ErrNotConnected is returned when exchanging over a link that is not open
var ErrNotConnected = errors.New("astidrone: not connected")

// Receiver yields raw inbound datagrams to its subscribers
type Receiver interface {
	Start() error
	Stop()
	Subscribe(h func([]byte)) (unsubscribe func())
}

// UDPLinkOptions configures a UDPLink
type UDPLinkOptions struct {
	Addr       string        // The drone's command address
	Attempts   int           // Attempts per exchange, only timeouts are retried
	LocalAddr  string        // The local address responses are received on
	MaxTimeout time.Duration // Caps the timeout derived from commands when > 0
}

// UDPLink exchanges commands and responses with the drone over UDP. Responses are correlated to
// requests in arrival order.
type UDPLink struct {
	cancel context.CancelFunc
	conn   *net.UDPConn
	ctx    context.Context
	mc     *sync.Mutex // Locks conn
	mw     *sync.Mutex // Locks ws and writes
	o      UDPLinkOptions
	wg     *sync.WaitGroup
	ws     []*udpWaiter
}

type udpWaiter struct {
	c chan string
}

// NewUDPLink creates a new UDP link
func NewUDPLink(o UDPLinkOptions) *UDPLink {
	if o.Addr == "" {
		o.Addr = DefaultCommandAddr
	}
	if o.LocalAddr == "" {
		o.LocalAddr = DefaultLocalCommandAddr
	}
	if o.Attempts <= 0 {
		o.Attempts = 1
	}
	return &UDPLink{
		mc: &sync.Mutex{},
		mw: &sync.Mutex{},
		o:  o,
		wg: &sync.WaitGroup{},
	}
}

// Open dials the drone and starts reading responses
func (l *UDPLink) Open() (err error) {
	// Lock
	l.mc.Lock()
	defer l.mc.Unlock()

	// Already open
	if l.conn != nil {
		return
	}

	// Create raddr
	var raddr *net.UDPAddr
	if raddr, err = net.ResolveUDPAddr("udp", l.o.Addr); err != nil {
		err = errors.Wrap(err, "astidrone: creating raddr failed")
		return
	}

	// Create laddr
	var laddr *net.UDPAddr
	if laddr, err = net.ResolveUDPAddr("udp", l.o.LocalAddr); err != nil {
		err = errors.Wrap(err, "astidrone: creating laddr failed")
		return
	}

	// Dial
	if l.conn, err = net.DialUDP("udp", laddr, raddr); err != nil {
		err = errors.Wrap(err, "astidrone: dialing failed")
		return
	}

	// Read responses
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.wg.Add(1)
	go l.readResponses(l.ctx, l.conn)
	return
}

// Close closes the connection. Pending exchanges fail.
func (l *UDPLink) Close() {
	// Lock
	l.mc.Lock()
	defer l.mc.Unlock()

	// Not open
	if l.conn == nil {
		return
	}

	// Cancel and close
	l.cancel()
	l.conn.Close()
	l.conn = nil
	l.wg.Wait()

	// Replies to this connection will never come
	l.mw.Lock()
	l.ws = nil
	l.mw.Unlock()
}

// LocalAddr returns the local address of the connection, nil when it's not open
func (l *UDPLink) LocalAddr() net.Addr {
	l.mc.Lock()
	defer l.mc.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *UDPLink) readResponses(ctx context.Context, conn *net.UDPConn) {
	defer l.wg.Done()
	for {
		// Check context
		if ctx.Err() != nil {
			return
		}

		// Read
		b := make([]byte, 2048)
		n, err := conn.Read(b)
		if err != nil {
			if ctx.Err() == nil {
				astilog.Error(errors.Wrap(err, "astidrone: reading response failed"))
			}
			continue
		}

		// Log
		r := string(bytes.TrimSpace(b[:n]))
		astilog.Debugf("astidrone: received resp '%s'", r)

		// Deliver to the oldest waiter
		if w := l.popWaiter(); w != nil {
			w.c <- r
		} else {
			astilog.Debugf("astidrone: no request waiting for resp '%s'", r)
		}
	}
}

func (l *UDPLink) popWaiter() (w *udpWaiter) {
	l.mw.Lock()
	defer l.mw.Unlock()
	if len(l.ws) == 0 {
		return
	}
	w = l.ws[0]
	l.ws = l.ws[1:]
	return
}

func (l *UDPLink) removeWaiter(w *udpWaiter) {
	l.mw.Lock()
	defer l.mw.Unlock()
	for i, v := range l.ws {
		if v == w {
			l.ws = append(l.ws[:i:i], l.ws[i+1:]...)
			return
		}
	}
}

// Exchange implements the Link interface
func (l *UDPLink) Exchange(ctx context.Context, r *Request) (msg string, err error) {
	for i := 0; i < l.o.Attempts; i++ {
		// Check cancellation between attempts
		if ctx.Err() != nil {
			err = ErrCanceled
			return
		}

		// Attempt
		if msg, err = l.attempt(r); err == nil || errors.Cause(err) != context.DeadlineExceeded {
			return
		}
		astilog.Debugf("astidrone: attempt %d/%d of '%s' timed out", i+1, l.o.Attempts, r.Command)
	}
	return
}

func (l *UDPLink) attempt(r *Request) (msg string, err error) {
	// Get connection
	l.mc.Lock()
	conn, ctx := l.conn, l.ctx
	l.mc.Unlock()
	if conn == nil {
		err = ErrNotConnected
		return
	}

	// Commands without response are fire and forget
	cmd := r.Command.String()
	if r.Command.rule.Response == ResponseNone {
		astilog.Debugf("astidrone: sending cmd '%s'", cmd)
		if _, err = conn.Write([]byte(cmd)); err != nil {
			err = errors.Wrap(err, "astidrone: writing failed")
		}
		return
	}

	// Register the waiter and write while holding the lock so that waiters are in write order
	w := &udpWaiter{c: make(chan string, 1)}
	l.mw.Lock()
	l.ws = append(l.ws, w)
	astilog.Debugf("astidrone: sending cmd '%s'", cmd)
	_, err = conn.Write([]byte(cmd))
	l.mw.Unlock()
	if err != nil {
		l.removeWaiter(w)
		err = errors.Wrap(err, "astidrone: writing failed")
		return
	}

	// Get timeout
	timeout := r.Command.Timeout()
	if l.o.MaxTimeout > 0 && timeout > l.o.MaxTimeout {
		timeout = l.o.MaxTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	// Wait for response
	select {
	case msg = <-w.c:
	case <-t.C:
		l.removeWaiter(w)
		err = errors.Wrapf(context.DeadlineExceeded, "astidrone: no response after %s", timeout)
	case <-ctx.Done():
		l.removeWaiter(w)
		err = ErrNotConnected
	}
	return
}

// UDPReceiver publishes the datagrams received on a local address
type UDPReceiver struct {
	addr   string
	b      *Broadcaster[[]byte]
	cancel context.CancelFunc
	conn   *net.UDPConn
	m      *sync.Mutex // Locks cancel and conn
	wg     *sync.WaitGroup
}

// NewUDPReceiver creates a new UDP receiver listening on addr once started
func NewUDPReceiver(addr string) *UDPReceiver {
	return &UDPReceiver{
		addr: addr,
		b:    NewBroadcaster[[]byte](),
		m:    &sync.Mutex{},
		wg:   &sync.WaitGroup{},
	}
}

// Subscribe implements the Receiver interface
func (r *UDPReceiver) Subscribe(h func([]byte)) (unsubscribe func()) {
	return r.b.Subscribe(h)
}

// Start implements the Receiver interface. It's a no-op when already started.
func (r *UDPReceiver) Start() (err error) {
	// Lock
	r.m.Lock()
	defer r.m.Unlock()

	// Already started
	if r.conn != nil {
		return
	}

	// Create laddr
	var laddr *net.UDPAddr
	if laddr, err = net.ResolveUDPAddr("udp", r.addr); err != nil {
		err = errors.Wrap(err, "astidrone: creating laddr failed")
		return
	}

	// Listen
	if r.conn, err = net.ListenUDP("udp", laddr); err != nil {
		err = errors.Wrap(err, "astidrone: listening failed")
		return
	}

	// Read
	var ctx context.Context
	ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go r.read(ctx, r.conn)
	return
}

// Stop implements the Receiver interface. It's a no-op when not started.
func (r *UDPReceiver) Stop() {
	// Lock
	r.m.Lock()
	defer r.m.Unlock()

	// Not started
	if r.conn == nil {
		return
	}

	// Cancel and close
	r.cancel()
	r.conn.Close()
	r.conn = nil
	r.wg.Wait()
}

// LocalAddr returns the address the receiver listens on, nil when it's not started
func (r *UDPReceiver) LocalAddr() net.Addr {
	r.m.Lock()
	defer r.m.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

func (r *UDPReceiver) read(ctx context.Context, conn *net.UDPConn) {
	defer r.wg.Done()
	for {
		// Check context
		if ctx.Err() != nil {
			return
		}

		// Read
		b := make([]byte, 2048)
		n, err := conn.Read(b)
		if err != nil {
			if ctx.Err() == nil {
				astilog.Error(errors.Wrapf(err, "astidrone: reading on %s failed", r.addr))
			}
			continue
		}

		// Publish
		r.publish(b[:n])
	}
}

func (r *UDPReceiver) publish(b []byte) {
	defer func() {
		if v := recover(); v != nil {
			astilog.Error(fmt.Errorf("astidrone: handling datagram received on %s panicked: %v", r.addr, v))
		}
	}()
	r.b.Publish(b)
}
