package sandbox

import (
	"bytes"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"go.dedis.ch/chainblog/contracts/blog"
	"go.dedis.ch/chainblog/core/store"
	"go.dedis.ch/chainblog/core/store/kv"
	"go.dedis.ch/chainblog/ledger"
	"golang.org/x/xerrors"
)

// apply validates and executes the transaction in the round. It returns the
// identifier of the application when the transaction creates one.
func (l *Ledger) apply(dbtx kv.WritableTx, stx types.SignedTxn, txID string,
	round uint64) (uint64, error) {

	tx := stx.Txn

	err := l.validate(tx, round)
	if err != nil {
		return 0, err
	}

	err = l.chargeFee(dbtx, tx)
	if err != nil {
		return 0, err
	}

	apps, err := dbtx.GetBucketOrCreate(bucketApps)
	if err != nil {
		return 0, err
	}

	state, err := dbtx.GetBucketOrCreate(bucketState)
	if err != nil {
		return 0, err
	}

	call := blog.Call{
		ApplicationID: uint64(tx.ApplicationID),
		OnCompletion:  tx.OnCompletion,
		Sender:        tx.Sender.String(),
		Note:          tx.Note,
		Args:          tx.ApplicationArgs,
		GroupSize:     1,
	}

	var record appRecord
	var created uint64

	if call.ApplicationID == 0 {
		if !bytes.Equal(tx.ApprovalProgram, l.approval) {
			return 0, xerrors.New("unknown approval program")
		}

		created, err = l.nextApp(dbtx)
		if err != nil {
			return 0, err
		}

		record = appRecord{
			ID:             created,
			Creator:        call.Sender,
			CreatedAtRound: round,
			GlobalInts:     tx.GlobalStateSchema.NumUint,
			GlobalBytes:    tx.GlobalStateSchema.NumByteSlice,
		}
	} else {
		var found bool

		record, found, err = readApp(dbtx, call.ApplicationID)
		if err != nil {
			return 0, err
		}

		if !found || record.Deleted {
			return 0, xerrors.Errorf("application %d does not exist", call.ApplicationID)
		}
	}

	call.Creator = record.Creator

	snap := appSnapshot{bucket: state, appID: record.ID}

	err = l.contract.Execute(snap, call)
	if err != nil {
		return 0, xerrors.Errorf("rejected by application %d: %v", record.ID, err)
	}

	err = checkState(snap, record)
	if err != nil {
		return 0, xerrors.Errorf("invalid state of application %d: %v", record.ID, err)
	}

	if tx.OnCompletion == types.DeleteApplicationOC {
		record.Deleted = true
		record.DeletedAtRound = round
	}

	err = writeApp(apps, record)
	if err != nil {
		return 0, err
	}

	txs, err := dbtx.GetBucketOrCreate(bucketTxs)
	if err != nil {
		return 0, err
	}

	index, err := dbtx.GetBucketOrCreate(bucketTxIndex)
	if err != nil {
		return 0, err
	}

	err = writeTx(txs, index, txRecord{
		ID:                   txID,
		Sender:               call.Sender,
		Type:                 string(tx.Type),
		Note:                 tx.Note,
		ConfirmedRound:       round,
		ApplicationID:        call.ApplicationID,
		CreatedApplicationID: created,
	})
	if err != nil {
		return 0, err
	}

	return created, nil
}

func (l *Ledger) validate(tx types.Transaction, round uint64) error {
	if tx.Type != types.ApplicationCallTx {
		return xerrors.Errorf("unsupported transaction type '%s'", tx.Type)
	}

	if tx.GenesisID != GenesisID || tx.GenesisHash != GenesisHash {
		return xerrors.Errorf("transaction of network '%s'", tx.GenesisID)
	}

	if round < uint64(tx.FirstValid) || round > uint64(tx.LastValid) {
		return xerrors.Errorf("round %d outside of the validity window [%d, %d]",
			round, tx.FirstValid, tx.LastValid)
	}

	if uint64(tx.Fee) < l.minFee {
		return xerrors.Errorf("fee %d below the minimum %d", tx.Fee, l.minFee)
	}

	if tx.Group != (types.Digest{}) {
		return xerrors.New("groups are not supported")
	}

	return nil
}

func (l *Ledger) chargeFee(dbtx kv.WritableTx, tx types.Transaction) error {
	accounts, err := dbtx.GetBucketOrCreate(bucketAccounts)
	if err != nil {
		return err
	}

	key := []byte(tx.Sender.String())
	balance := readUint64(accounts, key)

	if balance < uint64(tx.Fee) {
		return xerrors.Errorf("overspend: balance %d below fee %d", balance, tx.Fee)
	}

	return accounts.Set(key, uint64Key(balance-uint64(tx.Fee)))
}

func (l *Ledger) nextApp(dbtx kv.WritableTx) (uint64, error) {
	params, err := dbtx.GetBucketOrCreate(bucketParams)
	if err != nil {
		return 0, err
	}

	id := readUint64(params, keyNextApp) + 1

	err = params.Set(keyNextApp, uint64Key(id))
	if err != nil {
		return 0, err
	}

	return id, nil
}

// checkState verifies that the global state fits the schema of the
// application and the size of the slots.
func checkState(snap store.Iterable, record appRecord) error {
	var ints, slices uint64

	err := snap.ForEach(func(key, value []byte) error {
		v, err := blog.ToLedger(value)
		if err != nil {
			return xerrors.Errorf("key '%s': %v", key, err)
		}

		switch v.Type {
		case ledger.UintType:
			ints++
		default:
			slices++

			size := len(key) + len(value) - 1
			if size > SlotSize {
				return xerrors.Errorf("slot '%s' of %d bytes exceeds %d", key, size, SlotSize)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if ints > record.GlobalInts || slices > record.GlobalBytes {
		return xerrors.Errorf("%d integers and %d byte slices exceed the schema (%d, %d)",
			ints, slices, record.GlobalInts, record.GlobalBytes)
	}

	return nil
}
