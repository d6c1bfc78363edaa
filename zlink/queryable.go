package zlink

import (
	"fmt"
	"sync"

	"github.com/zlinklabs/zlink-go/internal/mesh"
	"github.com/zlinklabs/zlink-go/keyexpr"
)

// Query is one request delivered to a queryable. Payload is an
// independently owned snapshot following the usual handoff rule.
//
// The reply capability is use-bounded: Reply and ReplyWith are valid
// only until the handler returns. A reply issued after that (from
// another goroutine, or after the query's timeout) fails with
// ErrQueryFinalized. Deferred replies are deliberately unsupported; a
// handler that needs asynchronous work must do it before returning.
type Query struct {
	// KeyExpr is the query's key selector.
	KeyExpr string
	// Parameters carries the selector's parameter string (the part
	// after '?'), empty when absent.
	Parameters string
	// Payload is the optional request body, empty when absent.
	Payload *OwnedBytes
	// Context is the opaque value registered at declaration.
	Context any

	mq *mesh.Query
}

// Reply sends one reply keyed to the original query. A handler may
// reply zero or more times; zero replies is an implicit "no answer",
// and replies under different keys are the normal one-to-many fan-out.
func (q *Query) Reply(key string, payload []byte) error {
	return q.ReplyWith(key, payload, nil)
}

// ReplyWith is Reply with an explicit encoding and attachment.
func (q *Query) ReplyWith(key string, payload []byte, opts *ReplyOptions) error {
	ke, err := keyexpr.New(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	enc := EncodingBytes
	var attachment []byte
	if opts != nil {
		enc = opts.Encoding
		attachment = cloneBytes(opts.Attachment)
	}
	err = q.mq.Reply(&mesh.Sample{
		Key:        ke.String(),
		Kind:       mesh.KindPut,
		Payload:    append([]byte(nil), payload...),
		Attachment: attachment,
		Encoding:   enc.String(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueryFinalized, err)
	}
	return nil
}

// QueryHandler answers incoming queries. Invoked on substrate-owned
// goroutines, one query at a time per queryable.
type QueryHandler func(*Query)

// Queryable is a declared standing query responder.
type Queryable struct {
	session *Session
	key     *keyexpr.KeyExpr
	q       *mesh.Queryable
	resID   uint64

	closeOnce sync.Once
}

// QueryableBuilder builds a Queryable.
type QueryableBuilder struct {
	session  *Session
	key      string
	callback QueryHandler
	userCtx  any
	queueCap int
}

// DeclareQueryable creates a queryable builder for key.
func (s *Session) DeclareQueryable(key string) *QueryableBuilder {
	return &QueryableBuilder{session: s, key: key}
}

// WithCallback registers the query handler.
func (b *QueryableBuilder) WithCallback(cb QueryHandler) *QueryableBuilder {
	b.callback = cb
	return b
}

// WithContext attaches an opaque value surfaced on every delivered
// query's Context field.
func (b *QueryableBuilder) WithContext(ctx any) *QueryableBuilder {
	b.userCtx = ctx
	return b
}

// WithQueueCapacity overrides the pending-query queue depth.
func (b *QueryableBuilder) WithQueueCapacity(n int) *QueryableBuilder {
	b.queueCap = n
	return b
}

// Build declares the queryable.
func (b *QueryableBuilder) Build() (*Queryable, error) {
	ke, err := keyexpr.New(b.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if b.callback == nil {
		return nil, fmt.Errorf("%w: query callback cannot be nil", ErrDeclareFailed)
	}
	if b.session.isClosed() {
		return nil, ErrSessionClosed
	}

	callback := b.callback
	userCtx := b.userCtx
	qa := &Queryable{session: b.session, key: ke}
	qa.q = b.session.mesh.DeclareQueryable(ke, b.queueCap, func(mq *mesh.Query) {
		query := &Query{
			KeyExpr:    mq.Key,
			Parameters: mq.Parameters,
			Payload:    copyOwned(mq.Payload),
			Context:    userCtx,
			mq:         mq,
		}
		if err := safeCall(func() { callback(query) }); err != nil {
			_ = query.Payload.Release()
		}
	})

	id, err := b.session.addResource(qa)
	if err != nil {
		qa.q.Drop()
		return nil, err
	}
	qa.resID = id
	return qa, nil
}

// Undeclare releases the queryable with the same barrier as
// Subscriber.Undeclare: no handler invocation begins after it returns.
// Idempotent and nil-safe.
func (q *Queryable) Undeclare() error {
	if q == nil {
		return nil
	}
	q.closeOnce.Do(func() {
		q.q.Drop()
		q.session.removeResource(q.resID)
	})
	return nil
}

// Key returns the declared key expression.
func (q *Queryable) Key() string {
	return q.key.String()
}
