// internal/state/published.go
package state

import (
	"sync"
	"sync/atomic"
)

// Published holds a current value that many observers can read or follow.
// Load is lock-free. Store swaps the value atomically and notifies subscribers;
// a lagging subscriber sees only the latest value.
type Published[T any] struct {
	current atomic.Pointer[T]

	mutex       sync.Mutex
	subscribers map[uint64]chan T
	nextID      uint64
}

// NewPublished creates a slot holding initial
func NewPublished[T any](initial T) *Published[T] {
	p := &Published[T]{
		subscribers: make(map[uint64]chan T),
	}
	p.current.Store(&initial)
	return p
}

// Load returns the current value
func (p *Published[T]) Load() T {
	return *p.current.Load()
}

// Store publishes a new value to all observers
func (p *Published[T]) Store(value T) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current.Store(&value)
	for _, ch := range p.subscribers {
		offerLatest(ch, value)
	}
}

// Subscribe returns a channel that first yields the current value and then
// every later value. Call cancel to stop; the channel is closed afterwards.
func (p *Published[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	p.mutex.Lock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = ch
	offerLatest(ch, p.Load())
	p.mutex.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mutex.Lock()
			delete(p.subscribers, id)
			close(ch)
			p.mutex.Unlock()
		})
	}
	return ch, cancel
}

// offerLatest replaces a pending undelivered value with value. Caller holds the mutex.
func offerLatest[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- value:
	default:
	}
}
