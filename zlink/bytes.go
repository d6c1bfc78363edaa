package zlink

import (
	"sync"
	"sync/atomic"
)

// bufPool recycles event buffers. Release feeds it; copyOwned drains
// it. Oversized buffers are left to the garbage collector so one huge
// payload does not pin memory forever.
var bufPool = sync.Pool{
	New: func() any { return make([]byte, 0, 512) },
}

const maxPooledBuf = 1 << 20

// OwnedBytes is an independently owned snapshot of a substrate buffer.
// The facade copies every transient substrate view into an OwnedBytes
// before handing it across the boundary, so the record stays valid
// after the originating native call returns.
//
// Each OwnedBytes has exactly one owner at a time. Ownership moves with
// the value: the marshaling layer owns it during construction, the
// callback invocation receives it, and from then on the receiver must
// call Release exactly once when done. A second Release returns
// ErrReleased and leaves the buffer alone.
type OwnedBytes struct {
	buf      []byte
	released atomic.Bool
}

// copyOwned snapshots view into a freshly owned buffer. An empty or nil
// view yields a valid empty OwnedBytes.
func copyOwned(view []byte) *OwnedBytes {
	buf := bufPool.Get().([]byte)
	if cap(buf) < len(view) {
		buf = make([]byte, len(view))
	}
	buf = buf[:len(view)]
	copy(buf, view)
	return &OwnedBytes{buf: buf}
}

// Bytes returns the owned buffer. It returns nil after Release; the
// slice must not be retained past Release.
func (b *OwnedBytes) Bytes() []byte {
	if b == nil || b.released.Load() {
		return nil
	}
	return b.buf
}

// Len returns the buffer length, zero after Release.
func (b *OwnedBytes) Len() int {
	return len(b.Bytes())
}

// String returns the buffer as a string. Unlike Bytes, the result
// remains valid after Release because it is a copy.
func (b *OwnedBytes) String() string {
	return string(b.Bytes())
}

// Release returns the buffer to the facade. Exactly one Release per
// buffer: the second returns ErrReleased. Nil-safe.
func (b *OwnedBytes) Release() error {
	if b == nil {
		return nil
	}
	if !b.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	buf := b.buf
	b.buf = nil
	if cap(buf) <= maxPooledBuf {
		bufPool.Put(buf[:0])
	}
	return nil
}

// Released reports whether the buffer has been released.
func (b *OwnedBytes) Released() bool {
	return b == nil || b.released.Load()
}
