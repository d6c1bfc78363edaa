package zlink

import (
	"github.com/zlinklabs/zlink-go/internal/mesh"
)

// SampleKind discriminates writes from deletions.
type SampleKind int32

const (
	// KindPut is a value write.
	KindPut SampleKind = 0
	// KindDelete is a value deletion; the payload is empty.
	KindDelete SampleKind = 1
)

// String returns "PUT" or "DELETE".
func (k SampleKind) String() string {
	if k == KindDelete {
		return "DELETE"
	}
	return "PUT"
}

// Sample is one delivered PUT or DELETE event. Payload and Attachment
// are independently owned snapshots: the receiver owns them from the
// moment the callback is invoked and must release them exactly once
// (Release on the sample releases both).
type Sample struct {
	// KeyExpr is the key the sample was published on.
	KeyExpr string
	Kind    SampleKind
	Payload *OwnedBytes
	// Attachment is nil when the publisher attached nothing.
	Attachment *OwnedBytes
	Encoding   Encoding
	Priority   Priority
	Congestion CongestionControl
	Express    bool
	// Timestamp is nanoseconds since the Unix epoch, stamped by the
	// substrate at routing time.
	Timestamp uint64
	// Context is the opaque value registered at declaration.
	Context any
}

// Release releases the sample's owned buffers. Safe to call on samples
// without an attachment.
func (s *Sample) Release() {
	if s == nil {
		return
	}
	if err := s.Payload.Release(); err != nil {
		logger.Warn().Str("key", s.KeyExpr).Msg("double release of sample payload")
	}
	if s.Attachment != nil {
		if err := s.Attachment.Release(); err != nil {
			logger.Warn().Str("key", s.KeyExpr).Msg("double release of sample attachment")
		}
	}
}

// Reply is one answer to a query issued with Get.
type Reply struct {
	KeyExpr    string
	Kind       SampleKind
	Payload    *OwnedBytes
	Attachment *OwnedBytes
	Encoding   Encoding
	// Context is the opaque value passed in GetOptions, shared by every
	// reply to the same query.
	Context any
}

// Release releases the reply's owned buffers.
func (r *Reply) Release() {
	if r == nil {
		return
	}
	if err := r.Payload.Release(); err != nil {
		logger.Warn().Str("key", r.KeyExpr).Msg("double release of reply payload")
	}
	if r.Attachment != nil {
		if err := r.Attachment.Release(); err != nil {
			logger.Warn().Str("key", r.KeyExpr).Msg("double release of reply attachment")
		}
	}
}

// marshalSample snapshots a substrate sample view into an
// independently owned record. The view's buffers are only valid for
// the duration of the delivering call; everything the host might
// retain is copied here, before the callback runs.
func marshalSample(ms *mesh.Sample, userCtx any) *Sample {
	s := &Sample{
		KeyExpr:    ms.Key,
		Kind:       SampleKind(ms.Kind),
		Payload:    copyOwned(ms.Payload),
		Encoding:   EncodingFromString(ms.Encoding),
		Priority:   Priority(ms.Priority),
		Congestion: CongestionControl(ms.Congestion),
		Express:    ms.Express,
		Timestamp:  ms.Timestamp,
		Context:    userCtx,
	}
	if ms.Attachment != nil {
		s.Attachment = copyOwned(ms.Attachment)
	}
	return s
}

func marshalReply(ms *mesh.Sample, userCtx any) *Reply {
	r := &Reply{
		KeyExpr:  ms.Key,
		Kind:     SampleKind(ms.Kind),
		Payload:  copyOwned(ms.Payload),
		Encoding: EncodingFromString(ms.Encoding),
		Context:  userCtx,
	}
	if ms.Attachment != nil {
		r.Attachment = copyOwned(ms.Attachment)
	}
	return r
}
