package mesh

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zlinklabs/zlink-go/keyexpr"
)

// Queryable is a standing query handler registration.
type Queryable struct {
	mesh   *Mesh
	id     uint64
	expr   *keyexpr.KeyExpr
	worker *worker[*Query]
	once   sync.Once
}

// DeclareQueryable registers handle for every query whose key
// intersects expr. Queries are delivered on the queryable's own
// goroutine, one at a time.
func (m *Mesh) DeclareQueryable(expr *keyexpr.KeyExpr, queueCap int, handle func(*Query)) *Queryable {
	q := &Queryable{mesh: m, expr: expr}
	q.worker = newWorker(queueCap, func(query *Query) {
		handle(query)
		query.finalize()
	})
	m.mu.Lock()
	q.id = m.id()
	m.queryables[q.id] = q
	m.mu.Unlock()
	return q
}

// Drop unregisters the queryable with the same barrier as
// Subscription.Drop. Queries already queued are finalized unanswered.
func (q *Queryable) Drop() {
	if q == nil {
		return
	}
	q.once.Do(func() {
		q.mesh.mu.Lock()
		delete(q.mesh.queryables, q.id)
		q.mesh.mu.Unlock()
		q.worker.stop()
		// Drain abandoned queries so the querier's completion does not
		// wait out the full timeout for handlers that will never run.
		for {
			select {
			case query := <-q.worker.ch:
				query.finalize()
			default:
				return
			}
		}
	})
}

// Query is one request delivered to a queryable. The reply capability
// is valid until the handler returns; finalize then revokes it.
type Query struct {
	Key        string
	Parameters string
	Payload    []byte
	Attachment []byte
	Encoding   string

	sink      *querySink
	finalized atomic.Bool
}

// Reply routes one reply sample back to the querier. It returns
// ErrFinalized once the handler has returned or the query timed out.
func (q *Query) Reply(s *Sample) error {
	if q.finalized.Load() {
		return ErrFinalized
	}
	return q.sink.deliver(s)
}

func (q *Query) finalize() {
	if q.finalized.CompareAndSwap(false, true) {
		q.sink.queryableDone()
	}
}

// querySink is the fan-in side of one Get: it serializes replies to the
// querier's callback and fires completion exactly once, either when
// every matched queryable has finalized or when the timeout fires.
type querySink struct {
	mu      sync.Mutex
	closed  bool
	pending int
	onReply func(*Sample)
	onDone  func()
	timer   *time.Timer
}

func (s *querySink) deliver(sample *Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrFinalized
	}
	if s.onReply != nil {
		s.onReply(sample)
	}
	return nil
}

func (s *querySink) queryableDone() {
	s.mu.Lock()
	s.pending--
	finished := s.pending == 0 && !s.closed
	if finished {
		s.closed = true
		if s.timer != nil {
			s.timer.Stop()
		}
	}
	done := s.onDone
	s.mu.Unlock()
	if finished && done != nil {
		done()
	}
}

func (s *querySink) timeout() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	done := s.onDone
	s.mu.Unlock()
	logger.Debug().Msg("query timed out")
	if done != nil {
		done()
	}
}

// Get fans a query out to every queryable matching selector. Replies
// arrive via onReply from mesh goroutines; onDone fires exactly once
// when the query concludes (all responders finalized, or timeout). A
// query matching no queryable completes immediately.
func (m *Mesh) Get(selector *keyexpr.KeyExpr, params string, payload, attachment []byte, encoding string, timeout time.Duration, onReply func(*Sample), onDone func()) {
	m.mu.RLock()
	var targets []*Queryable
	for _, q := range m.queryables {
		if q.expr.Intersects(selector) {
			targets = append(targets, q)
		}
	}
	m.mu.RUnlock()

	sink := &querySink{pending: len(targets), onReply: onReply, onDone: onDone}
	if len(targets) == 0 {
		sink.mu.Lock()
		sink.closed = true
		sink.mu.Unlock()
		if onDone != nil {
			// Keep the fire-and-forget contract: completion never runs
			// on the caller's stack.
			go onDone()
		}
		return
	}
	sink.timer = time.AfterFunc(timeout, sink.timeout)

	for _, target := range targets {
		query := &Query{
			Key:        selector.String(),
			Parameters: params,
			Payload:    payload,
			Attachment: attachment,
			Encoding:   encoding,
			sink:       sink,
		}
		if !target.worker.enqueue(query, false) {
			query.finalize()
		}
	}
}
