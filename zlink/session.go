package zlink

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"

	"github.com/zlinklabs/zlink-go/internal/mesh"
	"github.com/zlinklabs/zlink-go/keyexpr"
)

// Session owns one connection to the messaging substrate and is the
// root of all other resources. Once closed, no operation on it or on
// resources declared against it is valid.
type Session struct {
	cfg    Config
	zid    string
	mesh   *mesh.Mesh
	handle *mesh.SessionHandle

	closed    atomic.Bool
	closeOnce sync.Once

	mu        sync.Mutex
	resources map[uint64]resource
	nextRes   uint64
}

// resource is any handle a session must be able to tear down
// defensively at close.
type resource interface {
	Undeclare() error
}

// SessionBuilder builds a Session.
type SessionBuilder struct {
	mode      Mode
	endpoints []string
	blob      []byte
	file      string
	mesh      *mesh.Mesh
}

// NewSession creates a session builder. With no options the session
// joins as a peer.
func NewSession() *SessionBuilder {
	return &SessionBuilder{}
}

// WithMode sets the session mode.
func (b *SessionBuilder) WithMode(mode Mode) *SessionBuilder {
	b.mode = mode
	return b
}

// WithEndpoints sets the session endpoints. Peer and router sessions
// listen on them; client sessions connect to them.
func (b *SessionBuilder) WithEndpoints(endpoints ...string) *SessionBuilder {
	b.endpoints = endpoints
	return b
}

// WithConfig supplies a structured configuration blob (JSON, comments
// tolerated), bypassing the mode/endpoint convenience logic.
func (b *SessionBuilder) WithConfig(blob []byte) *SessionBuilder {
	b.blob = blob
	return b
}

// WithConfigFile loads configuration from a .json/.jsonc/.json5, .yaml
// or .toml file.
func (b *SessionBuilder) WithConfigFile(path string) *SessionBuilder {
	b.file = path
	return b
}

// withMesh pins the routing domain; tests use it for isolation.
func (b *SessionBuilder) withMesh(m *mesh.Mesh) *SessionBuilder {
	b.mesh = m
	return b
}

// Build opens the session.
func (b *SessionBuilder) Build() (*Session, error) {
	var cfg Config
	var err error
	switch {
	case b.blob != nil:
		cfg, err = ParseConfig(b.blob)
	case b.file != "":
		cfg, err = LoadConfigFile(b.file)
	default:
		cfg = DefaultConfig()
		if b.mode != "" {
			cfg.Mode = b.mode
		}
		switch cfg.Mode {
		case ModePeer, ModeRouter:
			cfg.Listen.Endpoints = b.endpoints
		default:
			cfg.Connect.Endpoints = b.endpoints
		}
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
		}
	}
	if err != nil {
		return nil, err
	}

	m := b.mesh
	if m == nil {
		m = mesh.Default()
	}
	s := &Session{
		cfg:       cfg,
		zid:       newZID(),
		mesh:      m,
		resources: make(map[uint64]resource),
	}
	endpoints := cfg.Listen.Endpoints
	if len(endpoints) == 0 {
		endpoints = cfg.Connect.Endpoints
	}
	s.handle = m.Join(mesh.SessionInfo{
		ZID:       s.zid,
		WhatAmI:   string(cfg.Mode),
		Endpoints: endpoints,
	})
	logger.Debug().Str("zid", s.zid).Str("mode", string(cfg.Mode)).Msg("session opened")
	return s, nil
}

// Open opens a session with the given mode and endpoints. Peer and
// router sessions listen on the endpoints; client sessions connect to
// them. On platforms where multicast discovery misbehaves it is
// disabled unless the configuration says otherwise.
func Open(mode Mode, endpoints ...string) (*Session, error) {
	return NewSession().WithMode(mode).WithEndpoints(endpoints...).Build()
}

// OpenConfig opens a session from a structured configuration blob.
func OpenConfig(blob []byte) (*Session, error) {
	return NewSession().WithConfig(blob).Build()
}

// Close releases the session and invalidates every resource declared
// against it. Resources the host failed to undeclare are torn down
// defensively. Idempotent and nil-safe.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.mu.Lock()
		dangling := make([]resource, 0, len(s.resources))
		for _, r := range s.resources {
			dangling = append(dangling, r)
		}
		s.resources = nil
		s.mu.Unlock()
		for _, r := range dangling {
			// Hosts are responsible for undeclaring before close; skip
			// failures rather than aborting the teardown.
			if err := r.Undeclare(); err != nil {
				logger.Debug().Err(err).Msg("resource teardown at session close")
			}
		}
		s.handle.Leave()
		logger.Debug().Str("zid", s.zid).Msg("session closed")
	})
	return nil
}

// Info returns the substrate-assigned session identity as a GUID-style
// hex string.
func (s *Session) Info() string {
	if s == nil {
		return ""
	}
	return s.zid
}

// Config returns the configuration the session was opened with.
func (s *Session) Config() Config {
	return s.cfg
}

func (s *Session) isClosed() bool {
	return s == nil || s.closed.Load()
}

// addResource registers a child for defensive teardown. Returns 0 when
// the session is already closed.
func (s *Session) addResource(r resource) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resources == nil {
		return 0, ErrSessionClosed
	}
	s.nextRes++
	s.resources[s.nextRes] = r
	return s.nextRes, nil
}

func (s *Session) removeResource(id uint64) {
	s.mu.Lock()
	if s.resources != nil {
		delete(s.resources, id)
	}
	s.mu.Unlock()
}

// Put performs a one-shot write of payload under key, without a
// declared publisher. The caller retains ownership of payload; it is
// copied before Put returns.
func (s *Session) Put(key string, payload []byte) error {
	return s.PutWith(key, payload, nil)
}

// PutWith is Put with explicit options (attachment, encoding,
// priority, congestion policy).
func (s *Session) PutWith(key string, payload []byte, opts *PutOptions) error {
	ke, err := keyexpr.New(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if s.isClosed() {
		return ErrSessionClosed
	}
	o := opts.withDefaults()
	s.mesh.RouteSample(&mesh.Sample{
		Key:        ke.String(),
		Kind:       mesh.KindPut,
		Payload:    append([]byte(nil), payload...),
		Attachment: cloneBytes(o.Attachment),
		Encoding:   o.Encoding.String(),
		Priority:   int32(o.Priority),
		Congestion: int32(o.CongestionControl),
		Express:    o.Express,
	})
	return nil
}

// Delete performs a one-shot deletion under key.
func (s *Session) Delete(key string) error {
	ke, err := keyexpr.New(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.mesh.RouteSample(&mesh.Sample{
		Key:        ke.String(),
		Kind:       mesh.KindDelete,
		Priority:   int32(PriorityData),
		Congestion: int32(CongestionDrop),
	})
	return nil
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

// newZID derives a 16-byte session identity from process-local entropy
// and formats it GUID-style.
func newZID() string {
	hasher := blake3.New()
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err == nil {
		_, _ = hasher.Write(seed[:])
	}
	var now [8]byte
	binary.LittleEndian.PutUint64(now[:], uint64(time.Now().UnixNano()))
	_, _ = hasher.Write(now[:])
	var pid [4]byte
	binary.LittleEndian.PutUint32(pid[:], uint32(os.Getpid()))
	_, _ = hasher.Write(pid[:])

	sum := hasher.Sum(nil)
	id := sum[:16]
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		id[0], id[1], id[2], id[3], id[4], id[5], id[6], id[7],
		id[8], id[9], id[10], id[11], id[12], id[13], id[14], id[15])
}
