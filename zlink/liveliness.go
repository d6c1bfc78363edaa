package zlink

import (
	"fmt"
	"sync"
	"time"

	"github.com/zlinklabs/zlink-go/internal/mesh"
	"github.com/zlinklabs/zlink-go/keyexpr"
)

// LivelinessToken announces presence under a key expression. Presence
// is retracted when the token is undeclared or its session closes.
type LivelinessToken struct {
	session *Session
	key     *keyexpr.KeyExpr
	token   *mesh.Token
	resID   uint64

	closeOnce sync.Once
}

// DeclareLivelinessToken announces presence under key.
func (s *Session) DeclareLivelinessToken(key string) (*LivelinessToken, error) {
	ke, err := keyexpr.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	t := &LivelinessToken{session: s, key: ke}
	t.token = s.mesh.DeclareToken(ke, s.handle)
	id, err := s.addResource(t)
	if err != nil {
		t.token.Drop()
		return nil, err
	}
	t.resID = id
	return t, nil
}

// Undeclare retracts the token; matching liveliness subscribers see a
// not-alive transition. Idempotent and nil-safe.
func (t *LivelinessToken) Undeclare() error {
	if t == nil {
		return nil
	}
	t.closeOnce.Do(func() {
		t.token.Drop()
		t.session.removeResource(t.resID)
	})
	return nil
}

// Key returns the token's key expression.
func (t *LivelinessToken) Key() string {
	return t.key.String()
}

// LivelinessHandler receives alive/not-alive transitions for matching
// tokens.
type LivelinessHandler func(key string, alive bool)

// LivelinessSubscriber is a standing subscription to token
// transitions.
type LivelinessSubscriber struct {
	session *Session
	key     *keyexpr.KeyExpr
	sub     *mesh.LivelinessSubscription
	resID   uint64

	closeOnce sync.Once
}

// DeclareLivelinessSubscriber delivers alive/not-alive transitions for
// tokens matching key. With history set, tokens already alive at
// subscription time are delivered first as alive events.
func (s *Session) DeclareLivelinessSubscriber(key string, cb LivelinessHandler, history bool) (*LivelinessSubscriber, error) {
	ke, err := keyexpr.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if cb == nil {
		return nil, fmt.Errorf("%w: liveliness callback cannot be nil", ErrDeclareFailed)
	}
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	ls := &LivelinessSubscriber{session: s, key: ke}
	ls.sub = s.mesh.SubscribeLiveliness(ke, history, func(ev mesh.LivelinessEvent) {
		_ = safeCall(func() { cb(ev.Key, ev.Alive) })
	})
	id, err := s.addResource(ls)
	if err != nil {
		ls.sub.Drop()
		return nil, err
	}
	ls.resID = id
	return ls, nil
}

// Undeclare releases the subscription with the usual barrier.
// Idempotent and nil-safe.
func (ls *LivelinessSubscriber) Undeclare() error {
	if ls == nil {
		return nil
	}
	ls.closeOnce.Do(func() {
		ls.sub.Drop()
		ls.session.removeResource(ls.resID)
	})
	return nil
}

// LivelinessGet queries the tokens currently alive under key. Each
// match is reported once via cb (alive is always true for a snapshot);
// timeout bounds the query, zero meaning DefaultGetTimeout.
func (s *Session) LivelinessGet(key string, cb LivelinessHandler, timeout time.Duration) error {
	ke, err := keyexpr.New(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if cb == nil {
		return fmt.Errorf("%w: liveliness callback cannot be nil", ErrGetDispatchFailed)
	}
	if s.isClosed() {
		return ErrSessionClosed
	}
	if timeout <= 0 {
		timeout = DefaultGetTimeout
	}
	s.mesh.AliveTokens(ke, timeout, func(key string) {
		_ = safeCall(func() { cb(key, true) })
	}, nil)
	return nil
}
