// Package mem implements an in-memory key/value database. It follows the
// semantics of the bbolt implementation: updates are atomic and the buckets
// are iterated in key order.
package mem

import (
	"bytes"
	"sort"
	"sync"

	"go.dedis.ch/chainblog/core/store/kv"
	"golang.org/x/xerrors"
)

type bucketMap map[string][]byte

// DB is an in-memory database.
//
// - implements kv.DB
type DB struct {
	sync.Mutex

	buckets map[string]bucketMap
	closed  bool
}

// NewDB creates a new empty database.
func NewDB() *DB {
	return &DB{
		buckets: make(map[string]bucketMap),
	}
}

// View implements kv.DB. It executes the function with a read-only view of the
// buckets.
func (db *DB) View(fn func(kv.ReadableTx) error) error {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return xerrors.New("database closed")
	}

	return fn(&memTx{buckets: db.buckets})
}

// Update implements kv.DB. The function works on a copy of the buckets that
// replaces the current state only if it returns successfully.
func (db *DB) Update(fn func(kv.WritableTx) error) error {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return xerrors.New("database closed")
	}

	tx := &memTx{buckets: make(map[string]bucketMap, len(db.buckets))}

	for name, bucket := range db.buckets {
		cp := make(bucketMap, len(bucket))
		for k, v := range bucket {
			cp[k] = v
		}

		tx.buckets[name] = cp
	}

	err := fn(tx)
	if err != nil {
		return err
	}

	db.buckets = tx.buckets

	for _, callback := range tx.callbacks {
		callback()
	}

	return nil
}

// Close implements kv.DB.
func (db *DB) Close() error {
	db.Lock()
	db.closed = true
	db.Unlock()

	return nil
}

// memTx is a transaction over the in-memory buckets.
//
// - implements kv.WritableTx
type memTx struct {
	buckets   map[string]bucketMap
	callbacks []func()
}

// GetBucket implements kv.ReadableTx.
func (tx *memTx) GetBucket(name []byte) kv.Bucket {
	bucket, found := tx.buckets[string(name)]
	if !found {
		return nil
	}

	return memBucket{items: bucket}
}

// GetBucketOrCreate implements kv.WritableTx.
func (tx *memTx) GetBucketOrCreate(name []byte) (kv.Bucket, error) {
	if len(name) == 0 {
		return nil, xerrors.New("bucket name required")
	}

	bucket, found := tx.buckets[string(name)]
	if !found {
		bucket = make(bucketMap)
		tx.buckets[string(name)] = bucket
	}

	return memBucket{items: bucket}, nil
}

// OnCommit implements kv.WritableTx.
func (tx *memTx) OnCommit(fn func()) {
	tx.callbacks = append(tx.callbacks, fn)
}

// memBucket is a bucket of the in-memory database.
//
// - implements kv.Bucket
type memBucket struct {
	items bucketMap
}

// Get implements kv.Bucket.
func (b memBucket) Get(key []byte) []byte {
	return b.items[string(key)]
}

// Set implements kv.Bucket. The value is copied.
func (b memBucket) Set(key, value []byte) error {
	if len(key) == 0 {
		return xerrors.New("key required")
	}

	b.items[string(key)] = append([]byte{}, value...)

	return nil
}

// Delete implements kv.Bucket.
func (b memBucket) Delete(key []byte) error {
	delete(b.items, string(key))

	return nil
}

// ForEach implements kv.Bucket. It iterates over the items in key order.
func (b memBucket) ForEach(fn func(k, v []byte) error) error {
	for _, key := range b.sortedKeys(nil) {
		err := fn([]byte(key), b.items[key])
		if err != nil {
			return err
		}
	}

	return nil
}

// Scan implements kv.Bucket. It iterates over the items matching the prefix in
// key order.
func (b memBucket) Scan(prefix []byte, fn func(k, v []byte) error) error {
	for _, key := range b.sortedKeys(prefix) {
		err := fn([]byte(key), b.items[key])
		if err != nil {
			return xerrors.Errorf("callback failed: %v", err)
		}
	}

	return nil
}

func (b memBucket) sortedKeys(prefix []byte) []string {
	keys := make([]string, 0, len(b.items))
	for key := range b.items {
		if bytes.HasPrefix([]byte(key), prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	return keys
}
