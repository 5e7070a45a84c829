package astidrone

import "sync"

// Broadcaster delivers published values synchronously to all current subscribers, in
// subscription order. Values published before a subscription are not replayed.
type Broadcaster[T any] struct {
	id uint64
	m  sync.Mutex // Locks id and ss
	ss []broadcasterSubscription[T]
}

type broadcasterSubscription[T any] struct {
	h  func(T)
	id uint64
}

// NewBroadcaster creates a new broadcaster
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe adds a handler and returns a func removing it. The returned func is idempotent.
func (b *Broadcaster[T]) Subscribe(h func(T)) (unsubscribe func()) {
	// Add subscription
	b.m.Lock()
	b.id++
	id := b.id
	b.ss = append(b.ss, broadcasterSubscription[T]{h: h, id: id})
	b.m.Unlock()

	var o sync.Once
	return func() {
		o.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Broadcaster[T]) unsubscribe(id uint64) {
	b.m.Lock()
	defer b.m.Unlock()
	for i, s := range b.ss {
		if s.id == id {
			// Copy so that snapshots taken by Publish are left untouched
			ss := make([]broadcasterSubscription[T], 0, len(b.ss)-1)
			ss = append(ss, b.ss[:i]...)
			b.ss = append(ss, b.ss[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every subscriber. Handlers are called outside the lock so that they can
// subscribe or unsubscribe.
func (b *Broadcaster[T]) Publish(v T) {
	b.m.Lock()
	ss := b.ss
	b.m.Unlock()
	for _, s := range ss {
		s.h(v)
	}
}

// Len returns the number of subscribers
func (b *Broadcaster[T]) Len() int {
	b.m.Lock()
	defer b.m.Unlock()
	return len(b.ss)
}
