// Package store defines the key/value view that a contract has over the global
// state of an application.
//
// Keys are the binary state keys and values the binary content of the slots.
// Integer slots are stored as 8 bytes in big-endian order.
package store

// Readable is the interface for a readable state.
type Readable interface {
	// Get returns the value of the key, or nil if the slot is empty.
	Get(key []byte) ([]byte, error)
}

// Writable is the interface for a writable state.
type Writable interface {
	Set(key []byte, value []byte) error

	Delete(key []byte) error
}

// Snapshot is the state of an application during the execution of a call. The
// writes are only visible to the snapshot until the call is committed.
type Snapshot interface {
	Readable
	Writable
}

// Iterable is implemented by snapshots that can enumerate the slots in use, so
// that the schema of the application can be enforced.
type Iterable interface {
	// ForEach iterates over the slots in key order. The iteration stops when
	// the callback returns an error.
	ForEach(fn func(key, value []byte) error) error
}
