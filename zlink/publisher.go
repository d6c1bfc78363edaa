package zlink

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zlinklabs/zlink-go/internal/mesh"
	"github.com/zlinklabs/zlink-go/keyexpr"
)

// Publisher is a declared write handle for one key expression.
type Publisher struct {
	session *Session
	key     *keyexpr.KeyExpr
	opts    PublisherOptions
	resID   uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// PublisherBuilder builds a Publisher.
type PublisherBuilder struct {
	session *Session
	key     string
	opts    PublisherOptions
}

// DeclarePublisher creates a publisher builder for key. Options start
// from DefaultPublisherOptions.
func (s *Session) DeclarePublisher(key string) *PublisherBuilder {
	return &PublisherBuilder{session: s, key: key, opts: DefaultPublisherOptions()}
}

// WithPriority sets the priority applied to every put.
func (b *PublisherBuilder) WithPriority(p Priority) *PublisherBuilder {
	b.opts.Priority = p
	return b
}

// WithCongestionControl sets the backpressure policy.
func (b *PublisherBuilder) WithCongestionControl(cc CongestionControl) *PublisherBuilder {
	b.opts.CongestionControl = cc
	return b
}

// WithEncoding sets the default payload encoding.
func (b *PublisherBuilder) WithEncoding(e Encoding) *PublisherBuilder {
	b.opts.Encoding = e
	return b
}

// WithEncodingSchema refines the encoding with a schema name.
func (b *PublisherBuilder) WithEncodingSchema(schema string) *PublisherBuilder {
	b.opts.EncodingSchema = schema
	return b
}

// WithExpress requests low-latency handling for every put.
func (b *PublisherBuilder) WithExpress() *PublisherBuilder {
	b.opts.Express = true
	return b
}

// WithOptions replaces the options wholesale.
func (b *PublisherBuilder) WithOptions(opts PublisherOptions) *PublisherBuilder {
	b.opts = opts
	return b
}

// Build declares the publisher. The key expression is validated before
// the substrate is contacted.
func (b *PublisherBuilder) Build() (*Publisher, error) {
	ke, err := keyexpr.New(b.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if b.session.isClosed() {
		return nil, ErrSessionClosed
	}
	p := &Publisher{session: b.session, key: ke, opts: b.opts}
	id, err := b.session.addResource(p)
	if err != nil {
		return nil, err
	}
	p.resID = id
	return p, nil
}

// Put forwards payload as a PUT event under the publisher's key. The
// caller retains ownership of payload; it is copied before Put
// returns.
func (p *Publisher) Put(payload []byte) error {
	return p.put(payload, nil)
}

// PutWith is Put with per-call options. Zero-valued option fields
// inherit the publisher's declared options; an explicit value overrides
// them for this put only. CongestionBlock, EncodingEmpty and
// express-off are the zero values and cannot be selected per call;
// declare them on the publisher instead.
func (p *Publisher) PutWith(payload []byte, opts *PutOptions) error {
	return p.put(payload, opts)
}

func (p *Publisher) put(payload []byte, opts *PutOptions) error {
	if p == nil || p.closed.Load() {
		return fmt.Errorf("%w: publisher undeclared", ErrPutFailed)
	}
	if p.session.isClosed() {
		return ErrSessionClosed
	}
	prio := p.opts.Priority
	cc := p.opts.CongestionControl
	enc := p.opts.Encoding
	express := p.opts.Express
	var attachment []byte
	if opts != nil {
		if opts.Priority != 0 {
			prio = opts.Priority
		}
		if opts.CongestionControl != 0 {
			cc = opts.CongestionControl
		}
		if opts.Encoding != 0 {
			enc = opts.Encoding
		}
		if opts.Express {
			express = true
		}
		attachment = cloneBytes(opts.Attachment)
	}
	p.session.mesh.RouteSample(&mesh.Sample{
		Key:        p.key.String(),
		Kind:       mesh.KindPut,
		Payload:    append([]byte(nil), payload...),
		Attachment: attachment,
		Encoding:   enc.String(),
		Priority:   int32(prio),
		Congestion: int32(cc),
		Express:    express,
	})
	return nil
}

// Delete forwards a DELETE event with no payload.
func (p *Publisher) Delete() error {
	if p == nil || p.closed.Load() {
		return fmt.Errorf("%w: publisher undeclared", ErrDeleteFailed)
	}
	if p.session.isClosed() {
		return ErrSessionClosed
	}
	p.session.mesh.RouteSample(&mesh.Sample{
		Key:        p.key.String(),
		Kind:       mesh.KindDelete,
		Priority:   int32(p.opts.Priority),
		Congestion: int32(p.opts.CongestionControl),
	})
	return nil
}

// Undeclare releases the publisher. After it returns no further
// Put/Delete may be issued on the handle. Idempotent and nil-safe.
func (p *Publisher) Undeclare() error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.session.removeResource(p.resID)
	})
	return nil
}
