package sandbox

import (
	"encoding/binary"

	json "github.com/goccy/go-json"
	"go.dedis.ch/chainblog/core/store/kv"
	"golang.org/x/xerrors"
)

var (
	bucketParams   = []byte("params")
	bucketApps     = []byte("apps")
	bucketState    = []byte("state")
	bucketTxs      = []byte("txs")
	bucketTxIndex  = []byte("txindex")
	bucketAccounts = []byte("accounts")

	keyRound   = []byte("round")
	keyNextApp = []byte("next-app")
)

// appRecord is the record of an application.
type appRecord struct {
	ID             uint64 `json:"id"`
	Creator        string `json:"creator"`
	Deleted        bool   `json:"deleted"`
	CreatedAtRound uint64 `json:"created-at-round"`
	DeletedAtRound uint64 `json:"deleted-at-round,omitempty"`
	GlobalInts     uint64 `json:"global-ints"`
	GlobalBytes    uint64 `json:"global-bytes"`
}

// txRecord is the record of a committed transaction.
type txRecord struct {
	ID                   string `json:"id"`
	Sender               string `json:"sender"`
	Type                 string `json:"type"`
	Note                 []byte `json:"note,omitempty"`
	ConfirmedRound       uint64 `json:"confirmed-round"`
	ApplicationID        uint64 `json:"application-id"`
	CreatedApplicationID uint64 `json:"created-application-index,omitempty"`
}

func uint64Key(value uint64) []byte {
	buffer := make([]byte, 8)
	binary.BigEndian.PutUint64(buffer, value)

	return buffer
}

func readUint64(bucket kv.Bucket, key []byte) uint64 {
	if bucket == nil {
		return 0
	}

	value := bucket.Get(key)
	if len(value) != 8 {
		return 0
	}

	return binary.BigEndian.Uint64(value)
}

// stateKey is the key of an entry of the global state of an application.
func stateKey(appID uint64, key []byte) []byte {
	return append(uint64Key(appID), key...)
}

// txKey orders the transactions by round, then by identifier.
func txKey(round uint64, txID string) []byte {
	return append(uint64Key(round), txID...)
}

func readApp(tx kv.ReadableTx, id uint64) (appRecord, bool, error) {
	bucket := tx.GetBucket(bucketApps)
	if bucket == nil {
		return appRecord{}, false, nil
	}

	data := bucket.Get(uint64Key(id))
	if data == nil {
		return appRecord{}, false, nil
	}

	var app appRecord

	err := json.Unmarshal(data, &app)
	if err != nil {
		return appRecord{}, false, xerrors.Errorf("failed to unmarshal application: %v", err)
	}

	return app, true, nil
}

func writeApp(bucket kv.Bucket, app appRecord) error {
	data, err := json.Marshal(app)
	if err != nil {
		return xerrors.Errorf("failed to marshal application: %v", err)
	}

	return bucket.Set(uint64Key(app.ID), data)
}

func writeTx(txs, index kv.Bucket, record txRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return xerrors.Errorf("failed to marshal transaction: %v", err)
	}

	err = txs.Set(txKey(record.ConfirmedRound, record.ID), data)
	if err != nil {
		return xerrors.Errorf("failed to store transaction: %v", err)
	}

	err = index.Set([]byte(record.ID), txKey(record.ConfirmedRound, record.ID))
	if err != nil {
		return xerrors.Errorf("failed to index transaction: %v", err)
	}

	return nil
}

// readTx returns the committed transaction, or false if it does not exist.
func readTx(tx kv.ReadableTx, txID string) (txRecord, bool, error) {
	index := tx.GetBucket(bucketTxIndex)
	txs := tx.GetBucket(bucketTxs)

	if index == nil || txs == nil {
		return txRecord{}, false, nil
	}

	key := index.Get([]byte(txID))
	if key == nil {
		return txRecord{}, false, nil
	}

	var record txRecord

	err := json.Unmarshal(txs.Get(key), &record)
	if err != nil {
		return txRecord{}, false, xerrors.Errorf("failed to unmarshal transaction: %v", err)
	}

	return record, true, nil
}

// appSnapshot is the global state of one application inside a database
// transaction.
//
// - implements store.Snapshot
// - implements store.Iterable
type appSnapshot struct {
	bucket kv.Bucket
	appID  uint64
}

// Get implements store.Readable.
func (s appSnapshot) Get(key []byte) ([]byte, error) {
	return s.bucket.Get(stateKey(s.appID, key)), nil
}

// Set implements store.Writable.
func (s appSnapshot) Set(key, value []byte) error {
	return s.bucket.Set(stateKey(s.appID, key), value)
}

// Delete implements store.Writable.
func (s appSnapshot) Delete(key []byte) error {
	return s.bucket.Delete(stateKey(s.appID, key))
}

// ForEach implements store.Iterable. The keys are given without the prefix of
// the application.
func (s appSnapshot) ForEach(fn func(key, value []byte) error) error {
	return s.bucket.Scan(uint64Key(s.appID), func(k, v []byte) error {
		return fn(k[8:], v)
	})
}
