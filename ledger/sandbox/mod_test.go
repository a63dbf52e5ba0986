package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/chainblog/contracts/blog"
	"go.dedis.ch/chainblog/core/store/kv"
	"go.dedis.ch/chainblog/core/txn"
	"go.dedis.ch/chainblog/encoding"
	"go.dedis.ch/chainblog/internal/testing/fake"
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/post"
	"go.dedis.ch/chainblog/wallet"
	"golang.org/x/xerrors"
)

var ctx = context.Background()

var draft = post.Draft{
	Title:   "T",
	Image:   "http://x",
	Content: "C",
}

func TestLedger_SuggestedParams(t *testing.T) {
	l, err := NewLedger(WithMinFee(2000))
	require.NoError(t, err)

	params, err := l.SuggestedParams(ctx)
	require.NoError(t, err)
	require.Equal(t, GenesisID, params.GenesisID)
	require.Equal(t, GenesisHash[:], params.GenesisHash)
	require.Equal(t, types.Round(0), params.FirstRoundValid)
	require.Equal(t, types.Round(ValidityWindow), params.LastRoundValid)
	require.Equal(t, uint64(2000), params.MinFee)

	require.NoError(t, l.Close())

	_, err = l.SuggestedParams(ctx)
	require.EqualError(t, err, "failed to read round: database closed")
}

func TestLedger_Compile(t *testing.T) {
	l, err := NewLedger()
	require.NoError(t, err)

	bin, err := l.Compile(ctx, blog.ApprovalSource(blog.DefaultNote))
	require.NoError(t, err)
	require.Len(t, bin, 33)
	require.Equal(t, byte(programVersion), bin[0])

	other, err := l.Compile(ctx, blog.ApprovalSource("other"))
	require.NoError(t, err)
	require.NotEqual(t, bin, other)

	_, err = l.Compile(ctx, []byte("int 1"))
	require.EqualError(t, err, "missing version pragma")
}

func TestLedger_Create(t *testing.T) {
	l, w := makeLedger(t)

	tx := build(t, l, w).create(draft)

	txID, err := submit(t, l, w, tx)
	require.NoError(t, err)
	require.Equal(t, txn.ID(tx), txID)

	status, err := l.PendingTransaction(ctx, txID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), status.ConfirmedRound)
	require.Equal(t, uint64(1), status.ApplicationIndex)

	status, err = l.WaitForConfirmation(ctx, txID, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(1), status.ConfirmedRound)

	round, err := l.Round()
	require.NoError(t, err)
	require.Equal(t, uint64(1), round)

	app, err := l.LookupApplication(ctx, 1, false)
	require.NoError(t, err)
	require.Equal(t, w.Address().String(), app.Creator)
	require.Equal(t, uint64(1), app.CreatedAtRound)
	require.False(t, app.Deleted)
	require.Len(t, app.GlobalState, 5)

	p, err := post.NewLayout().Decode(app)
	require.NoError(t, err)
	require.Equal(t, post.Post{
		ID:      1,
		Title:   "T",
		Image:   "http://x",
		Content: "C",
		Owner:   w.Address().String(),
	}, p)

	page, err := l.SearchTransactions(ctx, ledger.Filter{
		NotePrefix: []byte(blog.DefaultNote),
		TxType:     ledger.TxTypeApplication,
	})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	require.Equal(t, txID, page.Transactions[0].ID)
	require.Equal(t, uint64(1), page.Transactions[0].CreatedApplicationID)
	require.Equal(t, "", page.NextToken)

	account, err := l.LookupAccount(ctx, w.Address().String())
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000-1000), account.Amount)
	require.Equal(t, uint64(1), account.Round)

	_, err = l.PendingTransaction(ctx, "unknown")
	require.EqualError(t, err, "not found: transaction unknown")
}

func TestLedger_CallAndDelete(t *testing.T) {
	l, owner := makeLedger(t)

	voter, err := wallet.NewRandomWallet()
	require.NoError(t, err)
	require.NoError(t, l.Fund(voter.Address().String(), 1_000_000))

	_, err = submit(t, l, owner, build(t, l, owner).create(draft))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = submit(t, l, voter, build(t, l, voter).vote(1, post.Upvote))
		require.NoError(t, err)

		p := lookup(t, l, 1)
		require.Equal(t, uint64(i+1), p.Upvotes)
		require.Equal(t, uint64(0), p.Downvotes)
	}

	_, err = submit(t, l, voter, build(t, l, voter).vote(1, post.Downvote))
	require.NoError(t, err)
	require.Equal(t, uint64(1), lookup(t, l, 1).Downvotes)

	long := strings.Repeat("long content ", 50)

	_, err = submit(t, l, owner, build(t, l, owner).edit(1, post.Draft{
		Title:   "T2",
		Image:   "http://y",
		Content: long,
	}))
	require.NoError(t, err)

	p := lookup(t, l, 1)
	require.Equal(t, "T2", p.Title)
	require.Equal(t, long, p.Content)
	require.Equal(t, uint64(3), p.Upvotes)

	_, err = submit(t, l, voter, build(t, l, voter).edit(1, draft))
	require.Error(t, err)
	require.True(t, xerrors.Is(err, ledger.ErrSubmissionRejected))
	require.Contains(t, err.Error(), "is not the creator")

	_, err = submit(t, l, voter, build(t, l, voter).delete(1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "rejected by application 1")

	_, err = submit(t, l, owner, build(t, l, owner).delete(1))
	require.NoError(t, err)

	_, err = l.LookupApplication(ctx, 1, false)
	require.EqualError(t, err, "not found: application 1")

	app, err := l.LookupApplication(ctx, 1, true)
	require.NoError(t, err)
	require.True(t, app.Deleted)
	require.NotZero(t, app.DeletedAtRound)

	_, err = submit(t, l, voter, build(t, l, voter).vote(1, post.Upvote))
	require.EqualError(t, err, "submission rejected: application 1 does not exist")
}

func TestLedger_Rejections(t *testing.T) {
	l, w := makeLedger(t)

	_, err := l.SendRawTransaction(ctx, []byte{0xc1})
	require.Error(t, err)
	require.True(t, xerrors.Is(err, ledger.ErrSubmissionRejected))

	tx := build(t, l, w).create(draft)

	var stx types.SignedTxn
	require.NoError(t, msgpack.Decode(sign(t, w, tx), &stx))

	stx.Txn.Note = []byte("blog-dapp:v2")
	_, err = l.SendRawTransaction(ctx, msgpack.Encode(stx))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid signature")

	poor, err := wallet.NewRandomWallet()
	require.NoError(t, err)

	_, err = submit(t, l, poor, build(t, l, poor).create(draft))
	require.EqualError(t, err, "submission rejected: overspend: balance 0 below fee 1000")

	bad := build(t, l, w).create(draft)
	bad.ApprovalProgram = []byte("other")
	_, err = submit(t, l, w, bad)
	require.EqualError(t, err, "submission rejected: unknown approval program")

	programs, err := txn.Compile(ctx, l, blog.DefaultNote)
	require.NoError(t, err)

	params, err := l.SuggestedParams(ctx)
	require.NoError(t, err)

	noted, err := txn.NewBuilder(programs, txn.WithNote("blog-dapp:v1")).
		BuildCreate(params, w.Address().String(), draft)
	require.NoError(t, err)

	_, err = submit(t, l, w, noted)
	require.EqualError(t, err,
		"submission rejected: rejected by application 1: failed to create: invalid note 'blog-dapp:v1'")

	small, err := txn.NewBuilder(programs,
		txn.WithGlobalSchema(types.StateSchema{NumUint: 2, NumByteSlice: 2})).
		BuildCreate(params, w.Address().String(), draft)
	require.NoError(t, err)

	_, err = submit(t, l, w, small)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceed the schema (2, 2)")

	params.FirstRoundValid = 100
	params.LastRoundValid = 200

	late, err := txn.NewBuilder(programs).BuildCreate(params, w.Address().String(), draft)
	require.NoError(t, err)

	_, err = submit(t, l, w, late)
	require.EqualError(t, err,
		"submission rejected: round 1 outside of the validity window [100, 200]")

	ok := build(t, l, w).create(draft)

	_, err = submit(t, l, w, ok)
	require.NoError(t, err)

	_, err = submit(t, l, w, ok)
	require.EqualError(t, err, "submission rejected: transaction "+txn.ID(ok)+" already in ledger")

	// Rejected transactions do not consume application identifiers.
	status, err := l.PendingTransaction(ctx, txn.ID(ok))
	require.NoError(t, err)
	require.Equal(t, uint64(1), status.ApplicationIndex)
}

func TestLedger_CommitLag(t *testing.T) {
	l, w := makeLedger(t, WithCommitLag(3))

	txID, err := submit(t, l, w, build(t, l, w).create(draft))
	require.NoError(t, err)

	status, err := l.PendingTransaction(ctx, txID)
	require.NoError(t, err)
	require.Equal(t, uint64(0), status.ConfirmedRound)

	_, err = submit(t, l, w, build(t, l, w).create(draft))
	require.EqualError(t, err, "submission rejected: transaction "+txID+" already in pool")

	_, err = l.WaitForConfirmation(ctx, txID, 2)
	require.EqualError(t, err,
		"confirmation timeout: transaction "+txID+" not committed after 2 rounds")
	require.True(t, xerrors.Is(err, ledger.ErrConfirmationTimeout))

	status, err = l.WaitForConfirmation(ctx, txID, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(3), status.ConfirmedRound)
	require.Equal(t, uint64(1), status.ApplicationIndex)

	canceled, cancel := context.WithCancel(ctx)
	cancel()

	voteID, err := submit(t, l, w, build(t, l, w).vote(1, post.Upvote))
	require.NoError(t, err)

	_, err = l.WaitForConfirmation(canceled, voteID, 4)
	require.EqualError(t, err, "failed to wait: context canceled")
}

func TestLedger_PoolError(t *testing.T) {
	l, w := makeLedger(t)

	_, err := submit(t, l, w, build(t, l, w).create(draft))
	require.NoError(t, err)

	l.lag = 1

	deleteID, err := submit(t, l, w, build(t, l, w).delete(1))
	require.NoError(t, err)

	editID, err := submit(t, l, w, build(t, l, w).edit(1, post.Draft{Title: "A", Image: "B"}))
	require.NoError(t, err)

	status, err := l.WaitForConfirmation(ctx, deleteID, 4)
	require.NoError(t, err)
	require.NotZero(t, status.ConfirmedRound)

	status, err = l.WaitForConfirmation(ctx, editID, 4)
	require.EqualError(t, err, "submission rejected: application 1 does not exist")
	require.Equal(t, "application 1 does not exist", status.PoolError)
}

func TestLedger_Pagination(t *testing.T) {
	l, w := makeLedger(t)

	for i := 0; i < 5; i++ {
		_, err := submit(t, l, w, build(t, l, w).create(post.Draft{
			Title:   "T",
			Image:   "I",
			Content: strings.Repeat("c", i),
		}))
		require.NoError(t, err)
	}

	// The vote does not carry the note.
	_, err := submit(t, l, w, build(t, l, w).vote(2, post.Upvote))
	require.NoError(t, err)

	ids := []uint64{}
	filter := ledger.Filter{NotePrefix: []byte(blog.DefaultNote), Limit: 2}

	for pages := 1; ; pages++ {
		page, err := l.SearchTransactions(ctx, filter)
		require.NoError(t, err)

		for _, tx := range page.Transactions {
			ids = append(ids, tx.CreatedApplicationID)
		}

		if page.NextToken == "" {
			require.Equal(t, 3, pages)
			break
		}

		filter.Next = page.NextToken
	}

	require.Equal(t, []uint64{1, 2, 3, 4, 5}, ids)

	page, err := l.SearchTransactions(ctx, ledger.Filter{MinRound: 4})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)

	page, err = l.SearchTransactions(ctx, ledger.Filter{NotePrefix: []byte("other")})
	require.NoError(t, err)
	require.Empty(t, page.Transactions)

	_, err = l.SearchTransactions(ctx, ledger.Filter{Next: "%%%"})
	require.Error(t, err)
	require.True(t, xerrors.Is(err, encoding.ErrCodec))
}

func TestLedger_Persistence(t *testing.T) {
	dir, err := os.MkdirTemp(os.TempDir(), "chainblog-sandbox")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "sandbox.db")

	db, err := kv.New(path)
	require.NoError(t, err)

	l, w := makeLedger(t, WithDB(db))

	txID, err := submit(t, l, w, build(t, l, w).create(draft))
	require.NoError(t, err)

	require.NoError(t, l.Close())

	db, err = kv.New(path)
	require.NoError(t, err)

	l, err = NewLedger(WithDB(db))
	require.NoError(t, err)

	defer l.Close()

	round, err := l.Round()
	require.NoError(t, err)
	require.Equal(t, uint64(1), round)

	status, err := l.PendingTransaction(ctx, txID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), status.ApplicationIndex)

	require.Equal(t, "T", lookup(t, l, 1).Title)
}

func TestLedger_Fund(t *testing.T) {
	l, err := NewLedger()
	require.NoError(t, err)

	err = l.Fund("abc", 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid address 'abc'")

	addr := types.Address{1}.String()

	_, err = l.LookupAccount(ctx, addr)
	require.EqualError(t, err, "not found: account "+addr)

	require.NoError(t, l.Fund(addr, 10))
	require.NoError(t, l.Fund(addr, 5))

	account, err := l.LookupAccount(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, uint64(15), account.Amount)
}

func TestCheckState(t *testing.T) {
	snap := fake.NewSnapshot()
	record := appRecord{ID: 1, GlobalInts: 1, GlobalBytes: 1}

	require.NoError(t, checkState(snap, record))

	require.NoError(t, snap.Set([]byte("TITLE"), append([]byte{1}, "T"...)))
	require.NoError(t, snap.Set([]byte("UPVOTE"), []byte{2, 0, 0, 0, 0, 0, 0, 0, 3}))
	require.NoError(t, checkState(snap, record))

	require.NoError(t, snap.Set([]byte("DOWNVOTE"), []byte{2, 0, 0, 0, 0, 0, 0, 0, 1}))
	err := checkState(snap, record)
	require.EqualError(t, err, "2 integers and 1 byte slices exceed the schema (1, 1)")

	require.NoError(t, snap.Delete([]byte("DOWNVOTE")))
	require.NoError(t, snap.Set([]byte("TITLE"), append([]byte{1}, make([]byte, SlotSize-1)...)))
	err = checkState(snap, record)
	require.EqualError(t, err, fmt.Sprintf("slot 'TITLE' of %d bytes exceeds %d",
		SlotSize+len("TITLE")-1, SlotSize))

	require.NoError(t, snap.Set([]byte("TITLE"), []byte{9}))
	err = checkState(snap, record)
	require.EqualError(t, err, "key 'TITLE': unknown tag 9")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeLedger(t *testing.T, opts ...Option) (*Ledger, *wallet.KeyWallet) {
	l, err := NewLedger(opts...)
	require.NoError(t, err)

	w, err := wallet.NewRandomWallet()
	require.NoError(t, err)

	require.NoError(t, l.Fund(w.Address().String(), 1_000_000))

	return l, w
}

type txBuilder struct {
	t       *testing.T
	builder txn.Builder
	params  types.SuggestedParams
	sender  string
}

func build(t *testing.T, l *Ledger, w *wallet.KeyWallet) txBuilder {
	programs, err := txn.Compile(ctx, l, blog.DefaultNote)
	require.NoError(t, err)

	params, err := l.SuggestedParams(ctx)
	require.NoError(t, err)

	return txBuilder{
		t:       t,
		builder: txn.NewBuilder(programs),
		params:  params,
		sender:  w.Address().String(),
	}
}

func (b txBuilder) create(d post.Draft) types.Transaction {
	tx, err := b.builder.BuildCreate(b.params, b.sender, d)
	require.NoError(b.t, err)

	return tx
}

func (b txBuilder) edit(id uint64, d post.Draft) types.Transaction {
	tx, err := b.builder.BuildEdit(b.params, b.sender, id, d)
	require.NoError(b.t, err)

	return tx
}

func (b txBuilder) vote(id uint64, dir post.Direction) types.Transaction {
	tx, err := b.builder.BuildVote(b.params, b.sender, id, dir)
	require.NoError(b.t, err)

	return tx
}

func (b txBuilder) delete(id uint64) types.Transaction {
	tx, err := b.builder.BuildDelete(b.params, b.sender, id)
	require.NoError(b.t, err)

	return tx
}

func sign(t *testing.T, w *wallet.KeyWallet, tx types.Transaction) []byte {
	_, err := w.Connect(ctx)
	require.NoError(t, err)

	blob, err := w.SignTransaction(ctx, txn.Encode(tx))
	require.NoError(t, err)

	return blob
}

func submit(t *testing.T, l *Ledger, w *wallet.KeyWallet, tx types.Transaction) (string, error) {
	return l.SendRawTransaction(ctx, sign(t, w, tx))
}

func lookup(t *testing.T, l *Ledger, id uint64) post.Post {
	app, err := l.LookupApplication(ctx, id, true)
	require.NoError(t, err)

	p, err := post.NewLayout().Decode(app)
	require.NoError(t, err)

	return p
}
