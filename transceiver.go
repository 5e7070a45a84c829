package astidrone

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrCanceled is returned by links whose pending transmissions have been canceled
var ErrCanceled = errors.New("astidrone: pending transmissions canceled")

// Request is a command on its way to the drone
type Request struct {
	Command   Command
	ID        string
	Timestamp time.Time
}

// NewRequest creates a new request
func NewRequest(c Command) *Request {
	return &Request{
		Command:   c,
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
	}
}

// Response is the outcome of a request
type Response struct {
	Elapsed   time.Duration
	Err       error // Set when Success is false
	Message   string
	Request   *Request
	Success   bool
	Timestamp time.Time
}

func newResponse(r *Request, msg string, elapsed time.Duration) *Response {
	return &Response{
		Elapsed:   elapsed,
		Message:   msg,
		Request:   r,
		Success:   true,
		Timestamp: time.Now(),
	}
}

func newFailedResponse(r *Request, err error, elapsed time.Duration) *Response {
	return &Response{
		Elapsed:   elapsed,
		Err:       err,
		Request:   r,
		Timestamp: time.Now(),
	}
}

// Transceiver sends one request and receives its response over an unreliable channel. Send never
// panics: transport failures are reported through a failed Response.
type Transceiver interface {
	Send(r *Request) *Response
	CancelPending()
}

// Link is the raw request/response primitive a LinkTransceiver is built on. The context is
// canceled when pending transmissions are canceled: implementations should check it between
// attempts rather than abort an attempt already on the wire.
type Link interface {
	Exchange(ctx context.Context, r *Request) (string, error)
}

// LinkTransceiver turns a Link into a Transceiver
type LinkTransceiver struct {
	cancel context.CancelFunc
	ctx    context.Context
	l      Link
	m      sync.Mutex // Locks cancel and ctx
}

// NewLinkTransceiver creates a new link transceiver
func NewLinkTransceiver(l Link) *LinkTransceiver {
	t := &LinkTransceiver{l: l}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// Send implements the Transceiver interface
func (t *LinkTransceiver) Send(r *Request) (resp *Response) {
	// Start stopwatch
	start := time.Now()

	// Get context
	t.m.Lock()
	ctx := t.ctx
	t.m.Unlock()

	// Handle panics
	defer func() {
		if v := recover(); v != nil {
			resp = newFailedResponse(r, fmt.Errorf("astidrone: link panicked: %v", v), time.Since(start))
		}
	}()

	// Exchange
	msg, err := t.l.Exchange(ctx, r)
	if err != nil {
		resp = newFailedResponse(r, errors.Wrapf(err, "astidrone: exchanging '%s' failed", r.Command), time.Since(start))
		return
	}
	resp = newResponse(r, msg, time.Since(start))
	return
}

// CancelPending cancels the context handed to in-progress exchanges. Later exchanges get a fresh
// context.
func (t *LinkTransceiver) CancelPending() {
	t.m.Lock()
	defer t.m.Unlock()
	t.cancel()
	t.ctx, t.cancel = context.WithCancel(context.Background())
}
