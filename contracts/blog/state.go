package blog

import (
	"encoding/binary"

	"go.dedis.ch/chainblog/core/store"
	"go.dedis.ch/chainblog/encoding"
	"go.dedis.ch/chainblog/ledger"
	"golang.org/x/xerrors"
)

// Values are stored with a tag byte that gives their type.
const (
	tagBytes byte = 1
	tagUint  byte = 2
)

func setBytes(snap store.Writable, key string, value []byte) error {
	return snap.Set([]byte(key), append([]byte{tagBytes}, value...))
}

func setUint(snap store.Writable, key string, value uint64) error {
	buffer := make([]byte, 9)
	buffer[0] = tagUint
	binary.BigEndian.PutUint64(buffer[1:], value)

	return snap.Set([]byte(key), buffer)
}

func getUint(snap store.Readable, key string) (uint64, error) {
	raw, err := snap.Get([]byte(key))
	if err != nil {
		return 0, err
	}

	if len(raw) == 0 {
		return 0, nil
	}

	value, err := ToLedger(raw)
	if err != nil {
		return 0, err
	}

	if value.Type != ledger.UintType {
		return 0, xerrors.Errorf("'%s' is not an integer", key)
	}

	return value.Uint, nil
}

// ToLedger converts a stored value into its representation in the global
// state of an application.
func ToLedger(raw []byte) (ledger.Value, error) {
	if len(raw) == 0 {
		return ledger.Value{}, xerrors.New("empty value")
	}

	switch raw[0] {
	case tagBytes:
		return ledger.Value{
			Type:  ledger.BytesType,
			Bytes: encoding.BytesToBase64(raw[1:]),
		}, nil
	case tagUint:
		if len(raw) != 9 {
			return ledger.Value{}, xerrors.Errorf("invalid integer of %d bytes", len(raw)-1)
		}

		return ledger.Value{
			Type: ledger.UintType,
			Uint: binary.BigEndian.Uint64(raw[1:]),
		}, nil
	default:
		return ledger.Value{}, xerrors.Errorf("unknown tag %d", raw[0])
	}
}
