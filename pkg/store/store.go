// Package store defines the transcript-store capability: a durable or
// in-memory key/value holder for the current transcript text.
//
// The monitor only ever needs Get and Set. Backends that can push change
// notifications additionally implement [Subscriber]; the monitor detects this
// with a type assertion and falls back to adaptive polling otherwise.
//
// All implementations must be safe for concurrent use.
package store

import "context"

// Store holds transcript text by key.
type Store interface {
	// Get returns the value stored under key. A missing key is not an
	// error: implementations return ("", nil).
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value string) error
}

// Subscriber is the optional push-notification capability. Backends that can
// observe writes expose it so the monitor can avoid polling.
type Subscriber interface {
	// Subscribe registers fn to be invoked with the new value whenever the
	// value under key changes. The returned cancel function unregisters the
	// callback; it is safe to call more than once.
	Subscribe(key string, fn func(value string)) (cancel func(), err error)
}
