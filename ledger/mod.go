// Package ledger defines the capabilities that the blog client needs from the
// network: a ledger node that accepts and confirms transactions, and an
// indexing service that makes historical transactions and application state
// searchable.
//
// Values follow the conventions of the ledger's REST services: keys and byte
// values of the global state are standard base64 text.
package ledger

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// TxTypeApplication is the type of the application-call transactions.
const TxTypeApplication = "appl"

// ValueType is the type of a global state value.
type ValueType uint64

const (
	// BytesType denotes a byte slice value.
	BytesType ValueType = 1

	// UintType denotes an unsigned integer value.
	UintType ValueType = 2
)

// Value is a global state value as returned by the indexing service.
type Value struct {
	Type ValueType

	// Bytes is the base64 text of the value when the type is BytesType.
	Bytes string

	// Uint is the value when the type is UintType.
	Uint uint64
}

// KeyValue is an entry of the global state of an application. The key is the
// base64 text of the binary key.
type KeyValue struct {
	Key   string
	Value Value
}

// Application is the record of an application as returned by the indexing
// service.
type Application struct {
	ID             uint64
	Creator        string
	Deleted        bool
	CreatedAtRound uint64
	DeletedAtRound uint64
	GlobalState    []KeyValue
}

// TransactionRecord is a confirmed transaction as returned by the indexing
// service.
type TransactionRecord struct {
	ID             string
	Sender         string
	Type           string
	Note           []byte
	ConfirmedRound uint64

	// ApplicationID is the application called by the transaction, or zero for
	// a creation.
	ApplicationID uint64

	// CreatedApplicationID is set when the transaction created an
	// application.
	CreatedApplicationID uint64
}

// Filter are the criteria of a transaction search.
type Filter struct {
	NotePrefix []byte
	TxType     string

	// MinRound excludes the transactions confirmed before this round when it
	// is set.
	MinRound uint64

	// Limit is the maximum number of transactions in a page. Zero lets the
	// service decide.
	Limit uint64

	// Next is the token of the page to read, as returned by the previous one.
	Next string
}

// TransactionPage is a page of the result of a transaction search.
type TransactionPage struct {
	Transactions []TransactionRecord

	// NextToken is empty when there is no more page.
	NextToken string
}

// Account is the record of an account.
type Account struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
	Round   uint64 `json:"round"`
}

// PendingTransaction is the status of a submitted transaction.
type PendingTransaction struct {
	// ConfirmedRound is zero until the transaction is committed.
	ConfirmedRound uint64

	// ApplicationIndex is the identifier of the created application, if any.
	ApplicationIndex uint64

	// PoolError is set when the transaction has been removed from the pool.
	PoolError string
}

// Client is the capability to read the network parameters, compile programs,
// submit transactions and follow their confirmation.
type Client interface {
	// SuggestedParams returns the current fee policy and validity window.
	SuggestedParams(ctx context.Context) (types.SuggestedParams, error)

	// Compile returns the binary of the program source.
	Compile(ctx context.Context, source []byte) ([]byte, error)

	// SendRawTransaction submits a signed transaction and returns its
	// identifier.
	SendRawTransaction(ctx context.Context, blob []byte) (string, error)

	// PendingTransaction returns the status of a submitted transaction.
	PendingTransaction(ctx context.Context, txID string) (PendingTransaction, error)

	// WaitForConfirmation waits for the transaction to be committed in at most
	// the given number of rounds. It returns an error with the
	// ConfirmationTimeout reason if it is not.
	WaitForConfirmation(ctx context.Context, txID string, rounds uint64) (PendingTransaction, error)
}

// Indexer is the capability to search the history of the ledger.
type Indexer interface {
	// SearchTransactions returns a page of the transactions that match the
	// filter, ordered by the service.
	SearchTransactions(ctx context.Context, filter Filter) (TransactionPage, error)

	// LookupApplication returns the application. Deleted applications are only
	// returned when includeAll is true. It returns an error with the NotFound
	// reason otherwise.
	LookupApplication(ctx context.Context, id uint64, includeAll bool) (Application, error)

	// LookupAccount returns the account of the address.
	LookupAccount(ctx context.Context, address string) (Account, error)
}
