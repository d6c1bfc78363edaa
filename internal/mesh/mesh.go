// Package mesh is the in-process messaging substrate behind the zlink
// facade. It routes samples to matching subscriptions, fans queries out
// to matching queryables and the replies back in, tracks liveliness
// tokens, and answers scouting probes.
//
// Every event is delivered from a mesh-owned goroutine, never from the
// caller of RouteSample or Get. Handlers registered here must therefore
// tolerate concurrent invocation across resources. Within one
// subscription, delivery order is arrival order.
package mesh

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zlinklabs/zlink-go/keyexpr"
)

var (
	// ErrClosed is returned when an operation reaches a dropped handle.
	ErrClosed = errors.New("mesh: handle closed")
	// ErrFinalized is returned for a reply issued after its query
	// completed.
	ErrFinalized = errors.New("mesh: query finalized")
)

// logger is silent unless ZLINK_LOG asks for debug output. The facade
// owns user-facing logging; the mesh only traces drops and teardown.
var logger = func() zerolog.Logger {
	level := zerolog.Disabled
	if lv, err := zerolog.ParseLevel(os.Getenv("ZLINK_LOG")); err == nil && lv <= zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("component", "mesh").Logger()
}()

// SampleKind discriminates writes from deletions.
type SampleKind int32

const (
	KindPut    SampleKind = 0
	KindDelete SampleKind = 1
)

// Sample is the substrate-level event record. Its byte slices are owned
// by the mesh and only valid for the duration of a delivery callback;
// receivers must copy before retaining (the facade's marshaling layer
// does exactly that).
type Sample struct {
	Key        string
	Kind       SampleKind
	Payload    []byte
	Attachment []byte
	Encoding   string
	Priority   int32
	Congestion int32
	Express    bool
	Timestamp  uint64
}

// CongestionBlock and CongestionDrop mirror the facade's congestion
// policy values; they decide what RouteSample does when a
// subscription's delivery queue is full.
const (
	CongestionBlock int32 = 0
	CongestionDrop  int32 = 1
)

// SessionInfo describes a joined session for scouting.
type SessionInfo struct {
	ZID       string
	WhatAmI   string
	Endpoints []string
}

// Mesh is one routing domain. Sessions that join the same Mesh see each
// other's publications, queries, tokens and hellos.
type Mesh struct {
	mu         sync.RWMutex
	nextID     uint64
	sessions   map[uint64]SessionInfo
	subs       map[uint64]*Subscription
	queryables map[uint64]*Queryable
	tokens     map[uint64]tokenEntry
	liveSubs   map[uint64]*LivelinessSubscription
	watchers   map[uint64]chan SessionInfo
}

// New creates an empty routing domain. Tests use isolated domains;
// production sessions share Default().
func New() *Mesh {
	return &Mesh{
		sessions:   make(map[uint64]SessionInfo),
		subs:       make(map[uint64]*Subscription),
		queryables: make(map[uint64]*Queryable),
		tokens:     make(map[uint64]tokenEntry),
		liveSubs:   make(map[uint64]*LivelinessSubscription),
		watchers:   make(map[uint64]chan SessionInfo),
	}
}

var defaultMesh = New()

// Default returns the process-wide routing domain.
func Default() *Mesh { return defaultMesh }

func (m *Mesh) id() uint64 {
	m.nextID++
	return m.nextID
}

// SessionHandle represents one joined session.
type SessionHandle struct {
	mesh *Mesh
	id   uint64
	once sync.Once
}

// Join registers a session with the routing domain and announces it to
// any in-flight scouts.
func (m *Mesh) Join(info SessionInfo) *SessionHandle {
	m.mu.Lock()
	id := m.id()
	m.sessions[id] = info
	var notify []chan SessionInfo
	for _, w := range m.watchers {
		notify = append(notify, w)
	}
	m.mu.Unlock()
	for _, w := range notify {
		select {
		case w <- info:
		default:
		}
	}
	return &SessionHandle{mesh: m, id: id}
}

// Leave removes the session. Liveliness tokens held by the session are
// retracted by the facade before Leave; any stragglers are retracted
// here so a token can never outlive its session.
func (h *SessionHandle) Leave() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.mesh.retractSessionTokens(h.id)
		h.mesh.mu.Lock()
		delete(h.mesh.sessions, h.id)
		h.mesh.mu.Unlock()
	})
}

// Subscribe registers deliver for every sample whose key intersects
// expr. Delivery happens on a dedicated goroutine per subscription.
func (m *Mesh) Subscribe(expr *keyexpr.KeyExpr, queueCap int, deliver func(*Sample)) *Subscription {
	s := &Subscription{
		mesh:   m,
		expr:   expr,
		worker: newWorker(queueCap, deliver),
	}
	m.mu.Lock()
	s.id = m.id()
	m.subs[s.id] = s
	m.mu.Unlock()
	return s
}

// Subscription is a standing sample route.
type Subscription struct {
	mesh   *Mesh
	id     uint64
	expr   *keyexpr.KeyExpr
	worker *worker[*Sample]
	once   sync.Once
}

// Drop unregisters the subscription and establishes the teardown
// barrier: when Drop returns, no delivery callback is running and none
// will start.
func (s *Subscription) Drop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.mesh.mu.Lock()
		delete(s.mesh.subs, s.id)
		s.mesh.mu.Unlock()
		s.worker.stop()
	})
}

// RouteSample stamps and fans a sample out to all matching
// subscriptions. With CongestionBlock a full queue blocks the caller;
// with CongestionDrop the sample is dropped for that subscription.
func (m *Mesh) RouteSample(s *Sample) {
	if s.Timestamp == 0 {
		s.Timestamp = uint64(time.Now().UnixNano())
	}
	key, err := keyexpr.New(s.Key)
	if err != nil {
		// Callers validate before routing; an invalid key here is a
		// facade bug, not a host error.
		logger.Debug().Str("key", s.Key).Msg("unroutable sample")
		return
	}
	m.mu.RLock()
	var targets []*Subscription
	for _, sub := range m.subs {
		if sub.expr.Intersects(key) {
			targets = append(targets, sub)
		}
	}
	m.mu.RUnlock()
	for _, sub := range targets {
		if !sub.worker.enqueue(s, s.Congestion == CongestionBlock) {
			logger.Debug().Str("key", s.Key).Msg("sample dropped on backpressure")
		}
	}
}
