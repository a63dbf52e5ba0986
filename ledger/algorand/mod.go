// Package algorand implements the ledger capabilities over the REST services
// of an Algorand network: algod for the ledger node and the indexer for the
// history.
package algorand

import (
	"context"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/indexer"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"go.dedis.ch/chainblog/encoding"
	"go.dedis.ch/chainblog/ledger"
	"golang.org/x/xerrors"
)

// Client is the client of an algod service.
//
// - implements ledger.Client
type Client struct {
	algod *algod.Client
}

// NewClient creates a client of the algod service at the address.
func NewClient(address, token string) (*Client, error) {
	client, err := algod.MakeClient(address, token)
	if err != nil {
		return nil, xerrors.Errorf("failed to make algod client: %v", err)
	}

	return &Client{algod: client}, nil
}

// SuggestedParams implements ledger.Client.
func (c *Client) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	params, err := c.algod.SuggestedParams().Do(ctx)
	if err != nil {
		return types.SuggestedParams{}, xerrors.Errorf("failed to get params: %v", err)
	}

	return params, nil
}

// Compile implements ledger.Client.
func (c *Client) Compile(ctx context.Context, source []byte) ([]byte, error) {
	resp, err := c.algod.TealCompile(source).Do(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to compile: %v", err)
	}

	program, err := encoding.Base64ToBytes(resp.Result)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode program: %w", err)
	}

	return program, nil
}

// SendRawTransaction implements ledger.Client. An error from the node is a
// rejection of the transaction.
func (c *Client) SendRawTransaction(ctx context.Context, blob []byte) (string, error) {
	txID, err := c.algod.SendRawTransaction(blob).Do(ctx)
	if err != nil {
		return "", ledger.NewError(ledger.SubmissionRejected, err)
	}

	return txID, nil
}

// PendingTransaction implements ledger.Client.
func (c *Client) PendingTransaction(ctx context.Context, txID string) (ledger.PendingTransaction, error) {
	info, _, err := c.algod.PendingTransactionInformation(txID).Do(ctx)
	if err != nil {
		if isNotFound(err) {
			return ledger.PendingTransaction{}, ledger.NewError(ledger.NotFound,
				xerrors.Errorf("transaction %s", txID))
		}

		return ledger.PendingTransaction{}, xerrors.Errorf("failed to get pending transaction: %v", err)
	}

	return ledger.PendingTransaction{
		ConfirmedRound:   info.ConfirmedRound,
		ApplicationIndex: info.ApplicationIndex,
		PoolError:        info.PoolError,
	}, nil
}

// WaitForConfirmation implements ledger.Client. It checks the transaction
// after each new block, for at most the given number of blocks.
func (c *Client) WaitForConfirmation(ctx context.Context, txID string,
	rounds uint64) (ledger.PendingTransaction, error) {

	status, err := c.algod.Status().Do(ctx)
	if err != nil {
		return ledger.PendingTransaction{}, xerrors.Errorf("failed to get status: %v", err)
	}

	start := status.LastRound

	for round := start; ; round++ {
		info, err := c.PendingTransaction(ctx, txID)
		if err != nil {
			return info, err
		}

		if info.PoolError != "" {
			return info, ledger.NewError(ledger.SubmissionRejected, xerrors.New(info.PoolError))
		}

		if info.ConfirmedRound > 0 {
			return info, nil
		}

		if round >= start+rounds {
			return info, ledger.NewError(ledger.ConfirmationTimeout,
				xerrors.Errorf("transaction %s not committed after %d rounds", txID, rounds))
		}

		_, err = c.algod.StatusAfterBlock(round).Do(ctx)
		if err != nil {
			return info, xerrors.Errorf("failed to wait for block %d: %v", round, err)
		}
	}
}

// Indexer is the client of an indexer service.
//
// - implements ledger.Indexer
type Indexer struct {
	indexer *indexer.Client
}

// NewIndexer creates a client of the indexer service at the address.
func NewIndexer(address, token string) (*Indexer, error) {
	client, err := indexer.MakeClient(address, token)
	if err != nil {
		return nil, xerrors.Errorf("failed to make indexer client: %v", err)
	}

	return &Indexer{indexer: client}, nil
}

// SearchTransactions implements ledger.Indexer.
func (idx *Indexer) SearchTransactions(ctx context.Context,
	filter ledger.Filter) (ledger.TransactionPage, error) {

	req := idx.indexer.SearchForTransactions()

	if len(filter.NotePrefix) > 0 {
		req = req.NotePrefix(filter.NotePrefix)
	}

	if filter.TxType != "" {
		req = req.TxType(filter.TxType)
	}

	if filter.MinRound > 0 {
		req = req.MinRound(filter.MinRound)
	}

	if filter.Limit > 0 {
		req = req.Limit(filter.Limit)
	}

	if filter.Next != "" {
		req = req.NextToken(filter.Next)
	}

	resp, err := req.Do(ctx)
	if err != nil {
		return ledger.TransactionPage{}, xerrors.Errorf("failed to search: %v", err)
	}

	page := ledger.TransactionPage{
		Transactions: make([]ledger.TransactionRecord, len(resp.Transactions)),
		NextToken:    resp.NextToken,
	}

	for i, tx := range resp.Transactions {
		page.Transactions[i] = ledger.TransactionRecord{
			ID:                   tx.Id,
			Sender:               tx.Sender,
			Type:                 tx.Type,
			Note:                 tx.Note,
			ConfirmedRound:       tx.ConfirmedRound,
			ApplicationID:        tx.ApplicationTransaction.ApplicationId,
			CreatedApplicationID: tx.CreatedApplicationIndex,
		}
	}

	return page, nil
}

// LookupApplication implements ledger.Indexer.
func (idx *Indexer) LookupApplication(ctx context.Context, id uint64,
	includeAll bool) (ledger.Application, error) {

	resp, err := idx.indexer.LookupApplicationByID(id).IncludeAll(includeAll).Do(ctx)
	if err != nil {
		if isNotFound(err) {
			return ledger.Application{}, ledger.NewError(ledger.NotFound,
				xerrors.Errorf("application %d", id))
		}

		return ledger.Application{}, xerrors.Errorf("failed to lookup application: %v", err)
	}

	return applicationOf(resp.Application), nil
}

// LookupAccount implements ledger.Indexer.
func (idx *Indexer) LookupAccount(ctx context.Context, address string) (ledger.Account, error) {
	round, account, err := idx.indexer.LookupAccountByID(address).Do(ctx)
	if err != nil {
		if isNotFound(err) {
			return ledger.Account{}, ledger.NewError(ledger.NotFound,
				xerrors.Errorf("account %s", address))
		}

		return ledger.Account{}, xerrors.Errorf("failed to lookup account: %v", err)
	}

	return ledger.Account{
		Address: account.Address,
		Amount:  account.Amount,
		Round:   round,
	}, nil
}

func applicationOf(app models.Application) ledger.Application {
	result := ledger.Application{
		ID:             app.Id,
		Creator:        app.Params.Creator,
		Deleted:        app.Deleted,
		CreatedAtRound: app.CreatedAtRound,
		DeletedAtRound: app.DeletedAtRound,
		GlobalState:    make([]ledger.KeyValue, len(app.Params.GlobalState)),
	}

	for i, kv := range app.Params.GlobalState {
		result.GlobalState[i] = ledger.KeyValue{
			Key: kv.Key,
			Value: ledger.Value{
				Type:  ledger.ValueType(kv.Value.Type),
				Bytes: kv.Value.Bytes,
				Uint:  kv.Value.Uint,
			},
		}
	}

	return result
}

// isNotFound returns true if the service answered with the not-found status.
func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "HTTP 404")
}
