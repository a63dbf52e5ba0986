// Package sandbox implements an in-process ledger for development and tests.
//
// The sandbox plays both the ledger node and the indexing service. It verifies
// the signature and the validity of every transaction, executes the blog
// contract against the global state of the application and commits one round
// per batch of transactions. The state is stored in a key/value database so
// that a sandbox backed by a file survives restarts.
//
// Transactions are evaluated when they are submitted, like a ledger node does,
// and are committed immediately unless a commit lag is set. With a lag, a
// transaction is committed after that many rounds, which are only produced
// while a client waits for a confirmation.
package sandbox

import (
	"bytes"
	"context"
	"crypto/sha512"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/rs/zerolog"
	"go.dedis.ch/chainblog"
	"go.dedis.ch/chainblog/contracts/blog"
	"go.dedis.ch/chainblog/core/store/kv"
	"go.dedis.ch/chainblog/core/store/mem"
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/post"
	"go.dedis.ch/chainblog/wallet"
	"golang.org/x/xerrors"
)

const (
	// GenesisID is the identifier of the sandbox network.
	GenesisID = "sandbox-v1"

	// DefaultMinFee is the minimum fee of a transaction.
	DefaultMinFee = 1000

	// ValidityWindow is the number of rounds a transaction is valid for.
	ValidityWindow = 1000

	// SlotSize is the maximum size of a key and its value in the global state.
	SlotSize = post.DefaultSlotSize

	programVersion = 6
)

// GenesisHash is the hash of the sandbox network.
var GenesisHash = types.Digest(sha512.Sum512_256([]byte(GenesisID)))

// errDryRun aborts the database transaction of an evaluation.
var errDryRun = xerrors.New("dry run")

// Option is the type of option to create a sandbox.
type Option func(*Ledger)

// WithDB sets the database of the sandbox. An in-memory database is used by
// default.
func WithDB(db kv.DB) Option {
	return func(l *Ledger) {
		l.db = db
	}
}

// WithCommitLag sets the number of rounds before a submitted transaction is
// committed.
func WithCommitLag(rounds uint64) Option {
	return func(l *Ledger) {
		l.lag = rounds
	}
}

// WithMinFee sets the minimum fee of a transaction.
func WithMinFee(fee uint64) Option {
	return func(l *Ledger) {
		l.minFee = fee
	}
}

// WithContract sets the contract executed by the applications. The approval
// program of the applications must be the one of the note.
func WithContract(note string, layout post.Layout) Option {
	return func(l *Ledger) {
		l.note = note
		l.contract = blog.NewContract(note, layout)
	}
}

// pendingTx is a transaction accepted in the pool and not yet committed.
type pendingTx struct {
	stx      types.SignedTxn
	commitAt uint64

	// poolError is set when the commit has failed.
	poolError string
}

// Ledger is an in-process ledger.
//
// - implements ledger.Client
// - implements ledger.Indexer
type Ledger struct {
	sync.Mutex

	db       kv.DB
	note     string
	contract blog.Contract
	approval []byte
	lag      uint64
	minFee   uint64
	pool     map[string]*pendingTx
	queue    []string
	logger   zerolog.Logger
}

// NewLedger creates a new sandbox.
func NewLedger(opts ...Option) (*Ledger, error) {
	l := &Ledger{
		db:       mem.NewDB(),
		note:     blog.DefaultNote,
		contract: blog.NewContract(blog.DefaultNote, post.NewLayout()),
		minFee:   DefaultMinFee,
		pool:     make(map[string]*pendingTx),
		logger:   chainblog.Logger.With().Str("component", "sandbox").Logger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	approval, err := compile(blog.ApprovalSource(l.note))
	if err != nil {
		return nil, xerrors.Errorf("failed to compile approval program: %v", err)
	}

	l.approval = approval

	err = l.db.Update(func(tx kv.WritableTx) error {
		for _, name := range [][]byte{bucketParams, bucketApps, bucketState,
			bucketTxs, bucketTxIndex, bucketAccounts} {

			_, err := tx.GetBucketOrCreate(name)
			if err != nil {
				return xerrors.Errorf("failed to create bucket '%s': %v", name, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to initialize database: %v", err)
	}

	return l, nil
}

// Round returns the last committed round.
func (l *Ledger) Round() (uint64, error) {
	var round uint64

	err := l.db.View(func(tx kv.ReadableTx) error {
		round = readUint64(tx.GetBucket(bucketParams), keyRound)
		return nil
	})
	if err != nil {
		return 0, xerrors.Errorf("failed to read round: %v", err)
	}

	return round, nil
}

// Fund adds the amount to the balance of the account.
func (l *Ledger) Fund(address string, amount uint64) error {
	_, err := types.DecodeAddress(address)
	if err != nil {
		return xerrors.Errorf("invalid address '%s': %v", address, err)
	}

	err = l.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(bucketAccounts)
		if err != nil {
			return err
		}

		balance := readUint64(bucket, []byte(address))

		return bucket.Set([]byte(address), uint64Key(balance+amount))
	})
	if err != nil {
		return xerrors.Errorf("failed to fund: %v", err)
	}

	l.logger.Info().Str("address", address).Uint64("amount", amount).Msg("account funded")

	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// SuggestedParams implements ledger.Client.
func (l *Ledger) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	round, err := l.Round()
	if err != nil {
		return types.SuggestedParams{}, err
	}

	return types.SuggestedParams{
		Fee:             0,
		GenesisID:       GenesisID,
		GenesisHash:     GenesisHash[:],
		FirstRoundValid: types.Round(round),
		LastRoundValid:  types.Round(round + ValidityWindow),
		FlatFee:         false,
		MinFee:          l.minFee,
	}, nil
}

// Compile implements ledger.Client. The binary is the version of the program
// followed by the digest of its source.
func (l *Ledger) Compile(ctx context.Context, source []byte) ([]byte, error) {
	return compile(source)
}

// SendRawTransaction implements ledger.Client. The transaction is evaluated
// against the current state and rejected if it fails.
func (l *Ledger) SendRawTransaction(ctx context.Context, blob []byte) (string, error) {
	var stx types.SignedTxn

	err := msgpack.Decode(blob, &stx)
	if err != nil {
		return "", reject(xerrors.Errorf("failed to decode: %v", err))
	}

	err = wallet.Verify(stx)
	if err != nil {
		return "", reject(err)
	}

	txID := crypto.GetTxID(stx.Txn)

	l.Lock()
	defer l.Unlock()

	_, found := l.pool[txID]
	if found {
		return "", reject(xerrors.Errorf("transaction %s already in pool", txID))
	}

	err = l.db.Update(func(tx kv.WritableTx) error {
		_, found, err := readTx(tx, txID)
		if err != nil {
			return err
		}

		if found {
			return xerrors.Errorf("transaction %s already in ledger", txID)
		}

		round := readUint64(tx.GetBucket(bucketParams), keyRound) + 1

		_, err = l.apply(tx, stx, txID, round)
		if err != nil {
			return err
		}

		return errDryRun
	})
	if err != errDryRun {
		return "", reject(err)
	}

	round, err := l.Round()
	if err != nil {
		return "", err
	}

	l.pool[txID] = &pendingTx{stx: stx, commitAt: round + l.lag}
	l.queue = append(l.queue, txID)

	l.logger.Debug().Str("txid", txID).Msg("transaction accepted")

	if l.lag == 0 {
		err = l.advance()
		if err != nil {
			return "", err
		}
	}

	return txID, nil
}

// PendingTransaction implements ledger.Client.
func (l *Ledger) PendingTransaction(ctx context.Context, txID string) (ledger.PendingTransaction, error) {
	l.Lock()
	defer l.Unlock()

	return l.pending(txID)
}

// WaitForConfirmation implements ledger.Client. A round is produced each time
// the transaction is found not committed yet.
func (l *Ledger) WaitForConfirmation(ctx context.Context, txID string,
	rounds uint64) (ledger.PendingTransaction, error) {

	l.Lock()
	defer l.Unlock()

	for i := uint64(0); ; i++ {
		status, err := l.pending(txID)
		if err != nil {
			return status, err
		}

		if status.PoolError != "" {
			return status, ledger.NewError(ledger.SubmissionRejected,
				xerrors.New(status.PoolError))
		}

		if status.ConfirmedRound > 0 {
			return status, nil
		}

		if i >= rounds {
			return status, ledger.NewError(ledger.ConfirmationTimeout,
				xerrors.Errorf("transaction %s not committed after %d rounds", txID, rounds))
		}

		if ctx.Err() != nil {
			return status, xerrors.Errorf("failed to wait: %w", ctx.Err())
		}

		err = l.advance()
		if err != nil {
			return status, err
		}
	}
}

func (l *Ledger) pending(txID string) (ledger.PendingTransaction, error) {
	ptx, found := l.pool[txID]
	if found {
		return ledger.PendingTransaction{PoolError: ptx.poolError}, nil
	}

	var record txRecord

	err := l.db.View(func(tx kv.ReadableTx) error {
		var err error
		record, found, err = readTx(tx, txID)
		return err
	})
	if err != nil {
		return ledger.PendingTransaction{}, xerrors.Errorf("failed to read transaction: %v", err)
	}

	if !found {
		return ledger.PendingTransaction{}, ledger.NewError(ledger.NotFound,
			xerrors.Errorf("transaction %s", txID))
	}

	return ledger.PendingTransaction{
		ConfirmedRound:   record.ConfirmedRound,
		ApplicationIndex: record.CreatedApplicationID,
	}, nil
}

// advance produces the next round and commits the transactions of the pool
// that are due. A transaction that fails is left in the pool with the reason.
func (l *Ledger) advance() error {
	var round uint64

	err := l.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(bucketParams)
		if err != nil {
			return err
		}

		round = readUint64(bucket, keyRound) + 1

		return bucket.Set(keyRound, uint64Key(round))
	})
	if err != nil {
		return xerrors.Errorf("failed to advance round: %v", err)
	}

	queue := l.queue[:0]

	for _, txID := range l.queue {
		ptx := l.pool[txID]

		if round < ptx.commitAt {
			queue = append(queue, txID)
			continue
		}

		id := txID

		err = l.db.Update(func(tx kv.WritableTx) error {
			tx.OnCommit(func() {
				delete(l.pool, id)

				l.logger.Debug().Str("txid", id).Uint64("round", round).Msg("transaction committed")
			})

			_, err := l.apply(tx, ptx.stx, id, round)
			return err
		})
		if err != nil {
			ptx.poolError = err.Error()

			l.logger.Warn().Err(err).Str("txid", txID).Msg("transaction failed")
		}
	}

	l.queue = queue

	return nil
}

func reject(err error) error {
	return ledger.NewError(ledger.SubmissionRejected, err)
}

func compile(source []byte) ([]byte, error) {
	if !bytes.HasPrefix(source, []byte("#pragma version ")) {
		return nil, xerrors.New("missing version pragma")
	}

	digest := sha512.Sum512_256(source)

	return append([]byte{programVersion}, digest[:]...), nil
}
