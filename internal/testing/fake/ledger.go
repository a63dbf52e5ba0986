package fake

import (
	"context"
	"strconv"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"go.dedis.ch/chainblog/ledger"
	"golang.org/x/xerrors"
)

// Client is a fake implementation of the ledger node client.
//
// - implements ledger.Client
type Client struct {
	Params  types.SuggestedParams
	TxID    string
	Pending ledger.PendingTransaction

	// Info is the record returned by PendingTransaction.
	Info ledger.PendingTransaction

	Sent  [][]byte
	Calls *Call

	ErrParams  error
	ErrCompile error
	ErrSend    error
	ErrPending error
	ErrWait    error
}

// NewClient returns a fake client that confirms every transaction at the given
// round.
func NewClient(round uint64) *Client {
	return &Client{
		Params: types.SuggestedParams{
			Fee:             0,
			FirstRoundValid: types.Round(round),
			LastRoundValid:  types.Round(round + 1000),
			GenesisID:       "fake-v1",
			GenesisHash:     make([]byte, 32),
			MinFee:          1000,
			FlatFee:         false,
		},
		TxID:    "TXID",
		Pending: ledger.PendingTransaction{ConfirmedRound: round},
		Info:    ledger.PendingTransaction{ConfirmedRound: round},
	}
}

// NewBadClient returns a fake client that fails every operation.
func NewBadClient() *Client {
	return &Client{
		ErrParams:  fakeErr,
		ErrCompile: fakeErr,
		ErrSend:    fakeErr,
		ErrPending: fakeErr,
		ErrWait:    fakeErr,
	}
}

// SuggestedParams implements ledger.Client.
func (c *Client) SuggestedParams(context.Context) (types.SuggestedParams, error) {
	c.Calls.Add("params")

	return c.Params, c.ErrParams
}

// Compile implements ledger.Client. The binary is the source prefixed by a
// marker.
func (c *Client) Compile(ctx context.Context, source []byte) ([]byte, error) {
	c.Calls.Add("compile", source)

	if c.ErrCompile != nil {
		return nil, c.ErrCompile
	}

	return append([]byte("compiled:"), source...), nil
}

// SendRawTransaction implements ledger.Client.
func (c *Client) SendRawTransaction(ctx context.Context, blob []byte) (string, error) {
	c.Calls.Add("send", blob)

	if c.ErrSend != nil {
		return "", c.ErrSend
	}

	c.Sent = append(c.Sent, blob)

	return c.TxID, nil
}

// PendingTransaction implements ledger.Client.
func (c *Client) PendingTransaction(ctx context.Context, txID string) (ledger.PendingTransaction, error) {
	c.Calls.Add("pending", txID)

	return c.Info, c.ErrPending
}

// WaitForConfirmation implements ledger.Client.
func (c *Client) WaitForConfirmation(ctx context.Context, txID string,
	rounds uint64) (ledger.PendingTransaction, error) {

	c.Calls.Add("wait", txID, rounds)

	if c.ErrWait != nil {
		return ledger.PendingTransaction{}, c.ErrWait
	}

	return c.Pending, nil
}

// Indexer is a fake implementation of the indexing service. The pages are
// served in order, the token of a page being its index.
//
// - implements ledger.Indexer
type Indexer struct {
	Pages    []ledger.TransactionPage
	Apps     map[uint64]ledger.Application
	AppErrs  map[uint64]error
	Accounts map[string]ledger.Account
	Filters  []ledger.Filter
	Calls    *Call

	ErrSearch  error
	ErrAccount error
}

// NewIndexer returns a fake indexer that serves the transactions in a single
// page.
func NewIndexer(txs ...ledger.TransactionRecord) *Indexer {
	return &Indexer{
		Pages:    []ledger.TransactionPage{{Transactions: txs}},
		Apps:     make(map[uint64]ledger.Application),
		AppErrs:  make(map[uint64]error),
		Accounts: make(map[string]ledger.Account),
	}
}

// NewPagedIndexer returns a fake indexer that serves the pages in order.
func NewPagedIndexer(pages ...[]ledger.TransactionRecord) *Indexer {
	idx := NewIndexer()
	idx.Pages = make([]ledger.TransactionPage, len(pages))

	for i, txs := range pages {
		idx.Pages[i].Transactions = txs

		if i+1 < len(pages) {
			idx.Pages[i].NextToken = strconv.Itoa(i + 1)
		}
	}

	return idx
}

// SearchTransactions implements ledger.Indexer.
func (idx *Indexer) SearchTransactions(ctx context.Context,
	filter ledger.Filter) (ledger.TransactionPage, error) {

	idx.Filters = append(idx.Filters, filter)

	if idx.ErrSearch != nil {
		return ledger.TransactionPage{}, idx.ErrSearch
	}

	index := 0
	if filter.Next != "" {
		var err error

		index, err = strconv.Atoi(filter.Next)
		if err != nil {
			return ledger.TransactionPage{}, err
		}
	}

	if index >= len(idx.Pages) {
		return ledger.TransactionPage{}, nil
	}

	return idx.Pages[index], nil
}

// LookupApplication implements ledger.Indexer. Deleted applications are
// hidden unless includeAll is true.
func (idx *Indexer) LookupApplication(ctx context.Context, id uint64,
	includeAll bool) (ledger.Application, error) {

	idx.Calls.Add("application", id, includeAll)

	err := idx.AppErrs[id]
	if err != nil {
		return ledger.Application{}, err
	}

	app, found := idx.Apps[id]
	if !found || (app.Deleted && !includeAll) {
		return ledger.Application{}, ledger.NewError(ledger.NotFound,
			xerrors.Errorf("application %d", id))
	}

	return app, nil
}

// LookupAccount implements ledger.Indexer.
func (idx *Indexer) LookupAccount(ctx context.Context, address string) (ledger.Account, error) {
	if idx.ErrAccount != nil {
		return ledger.Account{}, idx.ErrAccount
	}

	account, found := idx.Accounts[address]
	if !found {
		return ledger.Account{}, ledger.NewError(ledger.NotFound,
			xerrors.Errorf("account %s", address))
	}

	return account, nil
}
