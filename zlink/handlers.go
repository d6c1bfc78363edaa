package zlink

import "sync"

// Handler abstracts how events reach the host: direct callbacks
// (Closure) or channels (FifoChannel, RingChannel). The drop function
// is the terminal signal for the event stream: a subscriber's drop
// fires at undeclare, a query handler's drop fires at query completion.
type Handler[T any] interface {
	// Callbacks returns the event callback, the optional drop function,
	// and the receive channel. For callback-based handlers the channel
	// is nil; for channel-based handlers the callback feeds the channel
	// and drop closes it.
	Callbacks() (callback func(T), drop func(), receiver <-chan T)
}

// Closure wraps a direct callback. The drop function may be nil.
type Closure[T any] struct {
	call func(T)
	drop func()
}

// Callbacks returns the callback and drop functions with no channel.
func (c *Closure[T]) Callbacks() (func(T), func(), <-chan T) {
	return c.call, c.drop, nil
}

// NewClosure creates a callback-based handler.
func NewClosure[T any](call func(T), drop func()) *Closure[T] {
	return &Closure[T]{call: call, drop: drop}
}

// FifoChannel delivers events to a buffered channel. When the channel
// is full the substrate-side send blocks, backpressuring delivery for
// this resource only.
type FifoChannel[T any] struct {
	channel chan T
}

// Callbacks returns a callback that sends to the channel and a drop
// that closes it. Ranging over the channel therefore terminates when
// the resource is undeclared (or the query completes).
func (f *FifoChannel[T]) Callbacks() (func(T), func(), <-chan T) {
	callback := func(ev T) {
		f.channel <- ev
	}
	drop := func() {
		close(f.channel)
	}
	return callback, drop, f.channel
}

// NewFifoChannel creates a channel handler with the given buffer size.
// Size 0 makes delivery synchronous with the receiver.
func NewFifoChannel[T any](bufferSize int) *FifoChannel[T] {
	return &FifoChannel[T]{channel: make(chan T, bufferSize)}
}

// RingChannel delivers events to a channel with ring semantics: when
// full, the oldest event is discarded to make room. Discarded events
// that carry owned buffers are released here, since no receiver will.
type RingChannel[T any] struct {
	channel chan T
	mu      sync.Mutex
}

// Callbacks returns a non-blocking callback and a drop that closes the
// channel.
func (r *RingChannel[T]) Callbacks() (func(T), func(), <-chan T) {
	callback := func(ev T) {
		r.mu.Lock()
		defer r.mu.Unlock()
		select {
		case r.channel <- ev:
		default:
			oldest := <-r.channel
			releaseIfOwned(oldest)
			r.channel <- ev
		}
	}
	drop := func() {
		close(r.channel)
	}
	return callback, drop, r.channel
}

// NewRingChannel creates a ring channel handler. Capacity must be
// greater than 0.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ring channel capacity must be > 0")
	}
	return &RingChannel[T]{channel: make(chan T, capacity)}
}

// releaser is implemented by event records owning releasable buffers.
type releaser interface{ Release() }

func releaseIfOwned(ev any) {
	if r, ok := ev.(releaser); ok {
		r.Release()
	}
}
