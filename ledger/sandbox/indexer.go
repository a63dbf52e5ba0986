package sandbox

import (
	"bytes"
	"context"

	json "github.com/goccy/go-json"
	"go.dedis.ch/chainblog/contracts/blog"
	"go.dedis.ch/chainblog/core/store/kv"
	"go.dedis.ch/chainblog/encoding"
	"go.dedis.ch/chainblog/ledger"
	"golang.org/x/xerrors"
)

// DefaultPageSize is the number of transactions of a page when the filter does
// not set a limit.
const DefaultPageSize = 100

// errPageFull stops the iteration once a page is complete.
var errPageFull = xerrors.New("page full")

// SearchTransactions implements ledger.Indexer. The transactions are returned
// in the order of the rounds. The token of the next page is the key of the
// last transaction of the page.
func (l *Ledger) SearchTransactions(ctx context.Context,
	filter ledger.Filter) (ledger.TransactionPage, error) {

	var after []byte

	if filter.Next != "" {
		var err error

		after, err = encoding.Base64ToBytes(filter.Next)
		if err != nil {
			return ledger.TransactionPage{}, xerrors.Errorf("invalid token: %w", err)
		}
	}

	limit := filter.Limit
	if limit == 0 {
		limit = DefaultPageSize
	}

	page := ledger.TransactionPage{Transactions: []ledger.TransactionRecord{}}

	var last []byte

	err := l.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(bucketTxs)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			if after != nil && bytes.Compare(k, after) <= 0 {
				return nil
			}

			var record txRecord

			err := json.Unmarshal(v, &record)
			if err != nil {
				return xerrors.Errorf("failed to unmarshal transaction: %v", err)
			}

			if !match(record, filter) {
				return nil
			}

			if uint64(len(page.Transactions)) == limit {
				page.NextToken = encoding.BytesToBase64(last)
				return errPageFull
			}

			page.Transactions = append(page.Transactions, record.toLedger())
			last = append([]byte{}, k...)

			return nil
		})
	})
	if err != nil && !xerrors.Is(err, errPageFull) {
		return ledger.TransactionPage{}, xerrors.Errorf("failed to search: %v", err)
	}

	return page, nil
}

// LookupApplication implements ledger.Indexer.
func (l *Ledger) LookupApplication(ctx context.Context, id uint64,
	includeAll bool) (ledger.Application, error) {

	var app ledger.Application
	var found bool

	err := l.db.View(func(tx kv.ReadableTx) error {
		var record appRecord
		var err error

		record, found, err = readApp(tx, id)
		if err != nil || !found {
			return err
		}

		app = ledger.Application{
			ID:             record.ID,
			Creator:        record.Creator,
			Deleted:        record.Deleted,
			CreatedAtRound: record.CreatedAtRound,
			DeletedAtRound: record.DeletedAtRound,
			GlobalState:    []ledger.KeyValue{},
		}

		return tx.GetBucket(bucketState).Scan(uint64Key(id), func(k, v []byte) error {
			value, err := blog.ToLedger(v)
			if err != nil {
				return err
			}

			app.GlobalState = append(app.GlobalState, ledger.KeyValue{
				Key:   encoding.BytesToBase64(k[8:]),
				Value: value,
			})

			return nil
		})
	})
	if err != nil {
		return ledger.Application{}, xerrors.Errorf("failed to read application: %v", err)
	}

	if !found || (app.Deleted && !includeAll) {
		return ledger.Application{}, ledger.NewError(ledger.NotFound,
			xerrors.Errorf("application %d", id))
	}

	return app, nil
}

// LookupAccount implements ledger.Indexer.
func (l *Ledger) LookupAccount(ctx context.Context, address string) (ledger.Account, error) {
	var account ledger.Account
	var found bool

	err := l.db.View(func(tx kv.ReadableTx) error {
		value := tx.GetBucket(bucketAccounts).Get([]byte(address))
		found = value != nil

		account = ledger.Account{
			Address: address,
			Amount:  readUint64(tx.GetBucket(bucketAccounts), []byte(address)),
			Round:   readUint64(tx.GetBucket(bucketParams), keyRound),
		}

		return nil
	})
	if err != nil {
		return ledger.Account{}, xerrors.Errorf("failed to read account: %v", err)
	}

	if !found {
		return ledger.Account{}, ledger.NewError(ledger.NotFound,
			xerrors.Errorf("account %s", address))
	}

	return account, nil
}

func match(record txRecord, filter ledger.Filter) bool {
	if filter.TxType != "" && record.Type != filter.TxType {
		return false
	}

	if record.ConfirmedRound < filter.MinRound {
		return false
	}

	return bytes.HasPrefix(record.Note, filter.NotePrefix)
}

func (r txRecord) toLedger() ledger.TransactionRecord {
	return ledger.TransactionRecord{
		ID:                   r.ID,
		Sender:               r.Sender,
		Type:                 r.Type,
		Note:                 r.Note,
		ConfirmedRound:       r.ConfirmedRound,
		ApplicationID:        r.ApplicationID,
		CreatedApplicationID: r.CreatedApplicationID,
	}
}
