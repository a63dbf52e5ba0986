// Package kv defines the key/value database of the sandbox ledger.
//
// The records are grouped in buckets that are read and written inside atomic
// transactions. The default implementation is a file using bbolt as the engine
// (https://github.com/etcd-io/bbolt), and the mem package offers an in-memory
// database for the ledgers that do not persist.
package kv

// Bucket is a group of records of the database.
type Bucket interface {
	// Get returns the value of the key, or nil if the key does not exist.
	Get(key []byte) []byte

	Set(key, value []byte) error

	Delete(key []byte) error

	// ForEach iterates over the records in key order. The iteration stops when
	// the callback returns an error.
	ForEach(fn func(k, v []byte) error) error

	// Scan iterates over the records of which the key starts with the prefix,
	// in key order. The iteration stops when the callback returns an error.
	Scan(prefix []byte, fn func(k, v []byte) error) error
}

// ReadableTx is a read-only transaction over the database.
type ReadableTx interface {
	// GetBucket returns the bucket of the given name, or nil if it does not
	// exist.
	GetBucket(name []byte) Bucket
}

// WritableTx is a transaction that commits all its writes, or none of them.
type WritableTx interface {
	ReadableTx

	// GetBucketOrCreate returns the bucket of the given name and creates it
	// when it does not exist.
	GetBucketOrCreate(name []byte) (Bucket, error)

	// OnCommit registers a callback executed once the writes are durable. The
	// callbacks are dropped if the transaction fails.
	OnCommit(fn func())
}

// DB is the interface of the database.
type DB interface {
	// View executes the read-only function in a transaction.
	View(fn func(ReadableTx) error) error

	// Update executes the function in a writable transaction. Nothing is
	// written if the function returns an error.
	Update(fn func(WritableTx) error) error

	// Close releases the resources of the database.
	Close() error
}
