package zlink

import "time"

// Mode selects how a session participates in the mesh.
type Mode string

const (
	// ModePeer connects as a peer (default).
	ModePeer Mode = "peer"
	// ModeClient connects as a client.
	ModeClient Mode = "client"
	// ModeRouter connects as a router.
	ModeRouter Mode = "router"
)

// Priority orders a message relative to unrelated traffic. Seven
// levels; lower value is more urgent.
type Priority int32

const (
	PriorityRealTime        Priority = 1
	PriorityInteractiveHigh Priority = 2
	PriorityInteractiveLow  Priority = 3
	PriorityDataHigh        Priority = 4
	// PriorityData is the default.
	PriorityData       Priority = 5
	PriorityDataLow    Priority = 6
	PriorityBackground Priority = 7
)

// CongestionControl is the policy for a saturated outbound path.
type CongestionControl int32

const (
	// CongestionBlock blocks the publishing call until there is room.
	CongestionBlock CongestionControl = 0
	// CongestionDrop drops the message (default).
	CongestionDrop CongestionControl = 1
	// CongestionDropFirst is accepted for compatibility and treated as
	// CongestionDrop.
	CongestionDropFirst CongestionControl = 2
)

// DefaultGetTimeout bounds a query when GetOptions leaves Timeout zero.
const DefaultGetTimeout = 10 * time.Second

// PublisherOptions configures a declared publisher. Start from
// DefaultPublisherOptions and override; a zero CongestionControl means
// CongestionBlock, not the default policy.
type PublisherOptions struct {
	Priority          Priority
	CongestionControl CongestionControl
	Encoding          Encoding
	// EncodingSchema optionally refines Encoding (e.g. a concrete
	// schema name for application/protobuf).
	EncodingSchema string
	// Express requests low-latency handling, bypassing batching.
	Express bool
}

// DefaultPublisherOptions returns the defaults: priority Data,
// congestion drop, raw bytes encoding, express off.
func DefaultPublisherOptions() PublisherOptions {
	return PublisherOptions{
		Priority:          PriorityData,
		CongestionControl: CongestionDrop,
		Encoding:          EncodingBytes,
	}
}

// PutOptions configures a single put.
type PutOptions struct {
	Priority          Priority
	CongestionControl CongestionControl
	Encoding          Encoding
	EncodingSchema    string
	// Attachment is an opaque side-channel buffer delivered with the
	// sample. The caller retains ownership of the slice; it is copied
	// before the call returns.
	Attachment []byte
	Express    bool
}

// DefaultPutOptions returns the defaults: priority Data, congestion
// drop, raw bytes encoding, no attachment.
func DefaultPutOptions() PutOptions {
	return PutOptions{
		Priority:          PriorityData,
		CongestionControl: CongestionDrop,
		Encoding:          EncodingBytes,
	}
}

// GetOptions configures a query.
type GetOptions struct {
	// Timeout bounds the whole query. Zero means DefaultGetTimeout.
	Timeout           time.Duration
	Priority          Priority
	CongestionControl CongestionControl
	// Payload is an optional request body. Copied before Get returns.
	Payload  []byte
	Encoding Encoding
	// Attachment is copied before Get returns.
	Attachment []byte
	// OnDone, if set, is invoked exactly once when the query concludes
	// (responders exhausted or timeout). No reply is delivered after.
	OnDone func()
	// Context is an opaque value surfaced on every delivered Reply.
	Context any
}

// DefaultGetOptions returns the defaults: 10 s timeout, priority Data,
// congestion drop, raw bytes encoding.
func DefaultGetOptions() GetOptions {
	return GetOptions{
		Timeout:           DefaultGetTimeout,
		Priority:          PriorityData,
		CongestionControl: CongestionDrop,
		Encoding:          EncodingBytes,
	}
}

// ReplyOptions configures a queryable's reply.
type ReplyOptions struct {
	Encoding Encoding
	// Attachment is copied before ReplyWith returns.
	Attachment []byte
}

// withDefaults resolves a possibly-nil options pointer. Priority 0 is
// not a level and normalizes to PriorityData, matching the substrate's
// own fallback; everything else is taken as given.
func (o *PutOptions) withDefaults() PutOptions {
	if o == nil {
		return DefaultPutOptions()
	}
	out := *o
	if out.Priority == 0 {
		out.Priority = PriorityData
	}
	return out
}

func (o *GetOptions) withDefaults() GetOptions {
	if o == nil {
		return DefaultGetOptions()
	}
	out := *o
	if out.Timeout <= 0 {
		out.Timeout = DefaultGetTimeout
	}
	if out.Priority == 0 {
		out.Priority = PriorityData
	}
	return out
}
