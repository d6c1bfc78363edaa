package mesh

import "sync/atomic"

// worker is the delivery loop owned by a subscription or queryable. It
// drains a bounded FIFO on its own goroutine, so handlers always run on
// a mesh-owned goroutine and per-resource order is arrival order.
//
// stop provides the teardown barrier the facade's undeclare contract
// needs: it prevents new deliveries, then waits for the loop to finish
// the delivery in flight before returning. The intake channel is never
// closed, so a racing enqueue can at worst park an event that is then
// abandoned with the queue.
type worker[T any] struct {
	ch      chan T
	stopped chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	deliver func(T)
}

func newWorker[T any](queueCap int, deliver func(T)) *worker[T] {
	if queueCap <= 0 {
		queueCap = 256
	}
	w := &worker[T]{
		ch:      make(chan T, queueCap),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
		deliver: deliver,
	}
	go w.run()
	return w
}

func (w *worker[T]) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stopped:
			return
		case ev := <-w.ch:
			w.deliver(ev)
		}
	}
}

// enqueue hands an event to the worker. When the queue is full it
// blocks if block is set, otherwise it drops the event and returns
// false. Events offered to a stopped worker are dropped.
func (w *worker[T]) enqueue(ev T, block bool) bool {
	if w.closed.Load() {
		return false
	}
	if block {
		select {
		case w.ch <- ev:
			return true
		case <-w.stopped:
			return false
		}
	}
	select {
	case w.ch <- ev:
		return true
	default:
		return false
	}
}

func (w *worker[T]) stop() {
	w.closed.Store(true)
	close(w.stopped)
	<-w.done
}
