package astidrone

import "sync"

// Oldest segments are dropped beyond this limit
const maxVideoSegments = 512

// VideoObserver buffers the segments yielded by a video receiver
type VideoObserver struct {
	b           *Broadcaster[[]byte]
	m           *sync.Mutex // Locks ss
	ss          [][]byte
	unsubscribe func()
}

// NewVideoObserver creates a new video observer subscribed to r
func NewVideoObserver(r Receiver) *VideoObserver {
	o := &VideoObserver{
		b: NewBroadcaster[[]byte](),
		m: &sync.Mutex{},
	}
	o.unsubscribe = r.Subscribe(o.handle)
	return o
}

// Close unsubscribes from the receiver
func (o *VideoObserver) Close() { o.unsubscribe() }

// OnSegment subscribes to segments as they arrive
func (o *VideoObserver) OnSegment(h func([]byte)) (unsubscribe func()) {
	return o.b.Subscribe(h)
}

// Segments returns the buffered segments and starts a new buffer
func (o *VideoObserver) Segments() (ss [][]byte) {
	o.m.Lock()
	defer o.m.Unlock()
	ss, o.ss = o.ss, nil
	return
}

func (o *VideoObserver) handle(b []byte) {
	// Receivers may reuse their buffers
	s := append([]byte(nil), b...)

	// Buffer
	o.m.Lock()
	o.ss = append(o.ss, s)
	if len(o.ss) > maxVideoSegments {
		o.ss = o.ss[len(o.ss)-maxVideoSegments:]
	}
	o.m.Unlock()

	// Publish
	o.b.Publish(s)
}
