// Package stream implements the StreamObserver family (spec §4.7):
// the result-stream observer's READY/STREAMING/READY_STREAMING/
// SUCCEEDED/FAILED state machine (its back-pressure watermarks are
// computed but not acted on), and
// the simpler single-response observers for login, logoff, reset,
// route, and telemetry.
package stream

import "errors"

// ErrUnexpectedRecord is the protocol error raised when a RECORD
// arrives for an observer that only ever expects a single SUCCESS
// (spec §4.7: "Record receipt on any of these is a protocol error").
var ErrUnexpectedRecord = errors.New("stream: unexpected record for a single-response observer")

// Record is one row of a result stream: Values[i] corresponds to
// Keys[i]. Keys is shared across every Record in a stream and must
// not be mutated by callers.
type Record struct {
	Keys   []string
	Values []any
}

// Get looks up a value by key name, doing a linear scan of Keys. For
// hot paths prefer building a name->index map once per stream.
func (r Record) Get(key string) (any, bool) {
	for i, k := range r.Keys {
		if k == key {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Observer is the capability set every response observer implements
// (spec §3.6). OnNext and OnCompleted return an error when the event
// violates the observer's own protocol (e.g. a RECORD delivered to a
// single-response observer); the ResponseHandler escalates that error
// as a fatal protocol error for the connection. OnError is terminal
// and unconditionally accepted.
type Observer interface {
	OnNext(Record) error
	OnError(err error)
	OnCompleted(meta map[string]any) error
}

// KeysObserver is the optional onKeys capability: a stream observer
// that knows its field names before the first record arrives
// implements this so callers can fetch column names eagerly.
type KeysObserver interface {
	OnKeys(keys []string)
}
