// Package zlink is a client facade over a publish/subscribe/query
// messaging substrate. It opens sessions, declares publishers,
// subscribers, queryables and liveliness tokens, performs ad-hoc
// key-addressed put/delete/get operations, and scouts for peers.
//
// The package supports builder-pattern resource creation and idempotent
// cleanup. All resource types (Session, Publisher, Subscriber,
// Queryable, LivelinessToken) must be undeclared or closed after use;
// every Undeclare/Close is idempotent and safe to call multiple times,
// and safe on a nil handle.
//
// Callbacks are invoked on substrate-owned goroutines, potentially
// concurrently across resources. Event records handed to callbacks own
// their buffers: the facade copies substrate views into OwnedBytes
// before the callback sees them and never frees them afterwards; the
// receiver releases them once consumed. Avoid long blocking operations
// in callbacks to prevent stalling delivery for the resource.
package zlink
