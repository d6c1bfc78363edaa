package zlink

import (
	"fmt"
	"strings"

	"github.com/zlinklabs/zlink-go/internal/mesh"
	"github.com/zlinklabs/zlink-go/keyexpr"
)

// ReplyHandler receives query replies. Invoked on substrate-owned
// goroutines; replies to one query are serialized but unordered across
// responders.
type ReplyHandler func(*Reply)

// Get issues an asynchronous query for selector. Each matching reply is
// marshaled into an owned record and delivered via cb; when the query
// concludes (timeout or exhaustion of responders) opts.OnDone, if set,
// fires exactly once, and no reply is delivered after it. Get itself is
// fire-and-forget: it returns once the query is dispatched.
//
// A selector is a key expression optionally followed by '?' and a
// parameter string, e.g. "sensors/**?limit=5".
func (s *Session) Get(selector string, cb ReplyHandler, opts *GetOptions) error {
	if cb == nil {
		return fmt.Errorf("%w: reply callback cannot be nil", ErrGetDispatchFailed)
	}
	o := opts.withDefaults()
	return s.get(selector, cb, o.OnDone, &o)
}

// GetWithHandler is Get with a channel-based handler: replies feed the
// handler's channel and its drop function fires at completion, so
// ranging over a FifoChannel terminates when the query concludes.
func (s *Session) GetWithHandler(selector string, h Handler[*Reply], opts *GetOptions) error {
	if h == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrGetDispatchFailed)
	}
	callback, drop, _ := h.Callbacks()
	o := opts.withDefaults()
	done := drop
	if o.OnDone != nil {
		userDone := o.OnDone
		done = func() {
			userDone()
			if drop != nil {
				drop()
			}
		}
	}
	return s.get(selector, callback, done, &o)
}

func (s *Session) get(selector string, cb func(*Reply), done func(), o *GetOptions) error {
	keyPart, params, _ := strings.Cut(selector, "?")
	ke, err := keyexpr.New(keyPart)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if s.isClosed() {
		return ErrSessionClosed
	}
	userCtx := o.Context
	s.mesh.Get(ke, params,
		cloneBytes(o.Payload), cloneBytes(o.Attachment), o.Encoding.String(), o.Timeout,
		func(ms *mesh.Sample) {
			reply := marshalReply(ms, userCtx)
			if err := safeCall(func() { cb(reply) }); err != nil {
				reply.Release()
			}
		},
		func() {
			if done != nil {
				_ = safeCall(done)
			}
		},
	)
	return nil
}
