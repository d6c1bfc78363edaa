package mesh

import (
	"sync"
	"time"

	"github.com/zlinklabs/zlink-go/keyexpr"
)

type tokenEntry struct {
	key     *keyexpr.KeyExpr
	session uint64
}

// LivelinessEvent reports a token transition: alive on declaration,
// not alive on retraction.
type LivelinessEvent struct {
	Key   string
	Alive bool
}

// Token is a declared liveliness token.
type Token struct {
	mesh *Mesh
	id   uint64
	once sync.Once
}

// DeclareToken announces presence under key on behalf of the session
// identified by owner. Matching liveliness subscriptions see an alive
// transition.
func (m *Mesh) DeclareToken(key *keyexpr.KeyExpr, owner *SessionHandle) *Token {
	t := &Token{mesh: m}
	var session uint64
	if owner != nil {
		session = owner.id
	}
	m.mu.Lock()
	t.id = m.id()
	m.tokens[t.id] = tokenEntry{key: key, session: session}
	m.mu.Unlock()
	m.notifyLiveliness(key, true)
	return t
}

// Drop retracts the token, notifying matching subscriptions.
func (t *Token) Drop() {
	if t == nil {
		return
	}
	t.once.Do(func() { t.mesh.retractToken(t.id) })
}

func (m *Mesh) retractToken(id uint64) {
	m.mu.Lock()
	entry, ok := m.tokens[id]
	delete(m.tokens, id)
	m.mu.Unlock()
	if ok {
		m.notifyLiveliness(entry.key, false)
	}
}

// retractSessionTokens retracts every token the session left behind.
// The facade retracts tokens individually on a clean close; this is the
// defensive sweep for hosts that drop a session with tokens dangling.
func (m *Mesh) retractSessionTokens(session uint64) {
	m.mu.Lock()
	var orphaned []uint64
	for id, entry := range m.tokens {
		if entry.session == session {
			orphaned = append(orphaned, id)
		}
	}
	m.mu.Unlock()
	for _, id := range orphaned {
		m.retractToken(id)
	}
}

func (m *Mesh) notifyLiveliness(key *keyexpr.KeyExpr, alive bool) {
	m.mu.RLock()
	var targets []*LivelinessSubscription
	for _, sub := range m.liveSubs {
		if sub.expr.Intersects(key) {
			targets = append(targets, sub)
		}
	}
	m.mu.RUnlock()
	ev := LivelinessEvent{Key: key.String(), Alive: alive}
	for _, sub := range targets {
		sub.worker.enqueue(ev, true)
	}
}

// LivelinessSubscription delivers alive/not-alive transitions.
type LivelinessSubscription struct {
	mesh   *Mesh
	id     uint64
	expr   *keyexpr.KeyExpr
	worker *worker[LivelinessEvent]
	once   sync.Once
}

// SubscribeLiveliness registers deliver for token transitions matching
// expr. With history set, currently alive tokens are replayed as alive
// events before any live transition.
func (m *Mesh) SubscribeLiveliness(expr *keyexpr.KeyExpr, history bool, deliver func(LivelinessEvent)) *LivelinessSubscription {
	s := &LivelinessSubscription{mesh: m, expr: expr, worker: newWorker(0, deliver)}
	m.mu.Lock()
	s.id = m.id()
	var replay []string
	if history {
		for _, entry := range m.tokens {
			if entry.key.Intersects(expr) {
				replay = append(replay, entry.key.String())
			}
		}
	}
	m.liveSubs[s.id] = s
	m.mu.Unlock()
	for _, key := range replay {
		s.worker.enqueue(LivelinessEvent{Key: key, Alive: true}, true)
	}
	return s
}

// Drop unregisters with the usual barrier.
func (s *LivelinessSubscription) Drop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.mesh.mu.Lock()
		delete(s.mesh.liveSubs, s.id)
		s.mesh.mu.Unlock()
		s.worker.stop()
	})
}

// AliveTokens answers a one-shot liveliness query: every currently
// alive token matching expr, delivered via cb from a mesh goroutine,
// followed by exactly one done call. The timeout is accepted for
// interface parity; an in-process snapshot cannot be late.
func (m *Mesh) AliveTokens(expr *keyexpr.KeyExpr, _ time.Duration, cb func(key string), done func()) {
	m.mu.RLock()
	var keys []string
	for _, entry := range m.tokens {
		if entry.key.Intersects(expr) {
			keys = append(keys, entry.key.String())
		}
	}
	m.mu.RUnlock()
	go func() {
		for _, key := range keys {
			cb(key)
		}
		if done != nil {
			done()
		}
	}()
}
