package zlink

import (
	"fmt"
	"sync"

	"github.com/zlinklabs/zlink-go/internal/mesh"
	"github.com/zlinklabs/zlink-go/keyexpr"
)

// SampleHandler is the extended subscriber callback: it receives the
// full sample record (kind, payload, attachment, encoding, priority,
// congestion metadata, timestamp). It is invoked on substrate-owned
// goroutines; the handler's caller side owns the sample's buffers and
// must release them once consumed.
type SampleHandler func(*Sample)

// DataHandler is the basic subscriber callback: key, payload, kind and
// the attachment rendered as a string. Ownership of payload follows the
// same handoff rule as SampleHandler.
type DataHandler func(key string, payload *OwnedBytes, kind SampleKind, attachment string)

// Subscriber is a declared standing subscription.
type Subscriber struct {
	session *Session
	key     *keyexpr.KeyExpr
	sub     *mesh.Subscription
	dropFn  func()
	resID   uint64

	closeOnce sync.Once
}

// SubscriberBuilder builds a Subscriber. Exactly one of WithCallback,
// WithDataCallback or WithHandler must be supplied.
type SubscriberBuilder struct {
	session  *Session
	key      string
	callback SampleHandler
	basic    DataHandler
	handler  Handler[*Sample]
	userCtx  any
	queueCap int
}

// DeclareSubscriber creates a subscriber builder for key.
func (s *Session) DeclareSubscriber(key string) *SubscriberBuilder {
	return &SubscriberBuilder{session: s, key: key}
}

// WithCallback registers the extended callback shape.
func (b *SubscriberBuilder) WithCallback(cb SampleHandler) *SubscriberBuilder {
	b.callback = cb
	return b
}

// WithDataCallback registers the basic callback shape.
func (b *SubscriberBuilder) WithDataCallback(cb DataHandler) *SubscriberBuilder {
	b.basic = cb
	return b
}

// WithHandler registers a channel-based handler; its drop function
// fires at undeclare.
func (b *SubscriberBuilder) WithHandler(h Handler[*Sample]) *SubscriberBuilder {
	b.handler = h
	return b
}

// WithContext attaches an opaque value surfaced on every delivered
// sample's Context field.
func (b *SubscriberBuilder) WithContext(ctx any) *SubscriberBuilder {
	b.userCtx = ctx
	return b
}

// WithQueueCapacity overrides the delivery queue depth (default 256).
// A publisher with CongestionBlock blocks on a full queue; with
// CongestionDrop the sample is dropped for this subscriber.
func (b *SubscriberBuilder) WithQueueCapacity(n int) *SubscriberBuilder {
	b.queueCap = n
	return b
}

// Build declares the subscriber. The key expression is validated before
// the substrate is contacted.
func (b *SubscriberBuilder) Build() (*Subscriber, error) {
	ke, err := keyexpr.New(b.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	shapes := 0
	for _, set := range []bool{b.callback != nil, b.basic != nil, b.handler != nil} {
		if set {
			shapes++
		}
	}
	if shapes != 1 {
		return nil, fmt.Errorf("%w: exactly one callback shape required", ErrDeclareFailed)
	}
	if b.session.isClosed() {
		return nil, ErrSessionClosed
	}

	callback := b.callback
	var drop func()
	if b.basic != nil {
		basic := b.basic
		callback = func(s *Sample) {
			basic(s.KeyExpr, s.Payload, s.Kind, s.Attachment.String())
			// The basic shape only ever saw a string copy of the
			// attachment, so the owned buffer is released here.
			if s.Attachment != nil {
				_ = s.Attachment.Release()
			}
		}
	}
	if b.handler != nil {
		callback, drop, _ = b.handler.Callbacks()
	}

	userCtx := b.userCtx
	sub := &Subscriber{session: b.session, key: ke}
	sub.sub = b.session.mesh.Subscribe(ke, b.queueCap, func(ms *mesh.Sample) {
		// Snapshot first: the mesh view dies with this call, the owned
		// record is the callback's to keep.
		sample := marshalSample(ms, userCtx)
		if err := safeCall(func() { callback(sample) }); err != nil {
			sample.Release()
		}
	})
	sub.dropFn = drop

	id, err := b.session.addResource(sub)
	if err != nil {
		sub.sub.Drop()
		if drop != nil {
			drop()
		}
		return nil, err
	}
	sub.resID = id
	return sub, nil
}

// Undeclare releases the subscription. When it returns, no further
// callback invocation for this subscriber will begin, and any
// invocation already in progress has completed. Idempotent and
// nil-safe.
func (s *Subscriber) Undeclare() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.sub.Drop()
		s.session.removeResource(s.resID)
		if s.dropFn != nil {
			s.dropFn()
		}
	})
	return nil
}

// Key returns the declared key expression.
func (s *Subscriber) Key() string {
	return s.key.String()
}
