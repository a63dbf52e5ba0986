package pipeline

import (
	"context"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/chainblog/core/txn"
	"go.dedis.ch/chainblog/internal/testing/fake"
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/post"
	"golang.org/x/xerrors"
)

var sender = types.Address{4, 5, 6}.String()

func TestPipeline_SubmitCreate(t *testing.T) {
	client := fake.NewClient(10)
	client.Pending = ledger.PendingTransaction{ConfirmedRound: 12, ApplicationIndex: 42}
	client.Calls = &fake.Call{}

	signer := fake.NewSigner(sender)

	p := NewPipeline(client, signer, WithWaitRounds(2))

	rec := &Recorder{}
	p.Watch().Add(rec)

	before := testutil.ToFloat64(promSubmissions.WithLabelValues("confirmed"))

	tx := makeCreate(t, client.Params)

	outcome, err := p.Submit(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, Confirmed, outcome.State)
	require.Equal(t, uint64(42), outcome.ApplicationID)
	require.Equal(t, uint64(12), outcome.ConfirmedRound)
	require.Equal(t, "TXID", outcome.TxID)
	require.NotEmpty(t, outcome.Submission)
	require.Equal(t, ledger.Reason(""), outcome.Reason)

	require.Equal(t, []State{Built, Signed, Submitted, Confirmed}, rec.States())
	require.Equal(t, txn.ID(tx), rec.Events()[0].TxID)
	require.Equal(t, "TXID", rec.Events()[3].TxID)

	require.Len(t, signer.Raw, 1)
	require.Equal(t, txn.Encode(tx), signer.Raw[0])
	require.Equal(t, [][]byte{append([]byte("signed:"), signer.Raw[0]...)}, client.Sent)

	require.Equal(t, 2, client.Calls.Len())
	require.Equal(t, "wait", client.Calls.Get(1, 0))
	require.Equal(t, uint64(2), client.Calls.Get(1, 2))

	require.Equal(t, before+1, testutil.ToFloat64(promSubmissions.WithLabelValues("confirmed")))
}

func TestPipeline_SubmitCreateReadback(t *testing.T) {
	client := fake.NewClient(10)
	client.Info.ApplicationIndex = 7
	client.Calls = &fake.Call{}

	p := NewPipeline(client, fake.NewSigner(sender))

	outcome, err := p.Submit(context.Background(), makeCreate(t, client.Params))
	require.NoError(t, err)
	require.Equal(t, uint64(7), outcome.ApplicationID)
	require.Equal(t, "pending", client.Calls.Get(2, 0))

	client.Info.ApplicationIndex = 0

	outcome, err = p.Submit(context.Background(), makeCreate(t, client.Params))
	require.EqualError(t, err, "not found: failed to read application: no application created by TXID")
	require.Equal(t, Failed, outcome.State)
	require.Equal(t, ledger.NotFound, outcome.Reason)

	client.ErrPending = fake.GetError()

	_, err = p.Submit(context.Background(), makeCreate(t, client.Params))
	require.EqualError(t, err, "not found: "+fake.Err("failed to read application"))
}

func TestPipeline_SubmitCall(t *testing.T) {
	client := fake.NewClient(10)
	client.Calls = &fake.Call{}

	p := NewPipeline(client, fake.NewSigner(sender))

	builder := txn.NewBuilder(txn.Programs{})

	tx, err := builder.BuildVote(client.Params, sender, 3, post.Upvote)
	require.NoError(t, err)

	outcome, err := p.Submit(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, Confirmed, outcome.State)
	require.Equal(t, uint64(0), outcome.ApplicationID)

	// No read back of the application.
	require.Equal(t, 2, client.Calls.Len())

	tx, err = builder.BuildDelete(client.Params, sender, 3)
	require.NoError(t, err)

	outcome, err = p.Submit(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), outcome.ApplicationID)
}

func TestPipeline_SubmitPayment(t *testing.T) {
	client := fake.NewClient(10)
	client.Calls = &fake.Call{}

	p := NewPipeline(client, fake.NewSigner(sender))

	tx, err := transaction.MakePaymentTxn(sender, types.Address{7}.String(), 1000,
		nil, "", client.Params)
	require.NoError(t, err)

	outcome, err := p.Submit(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, Confirmed, outcome.State)
	require.Equal(t, uint64(0), outcome.ApplicationID)

	// Payments do not create an application.
	require.Equal(t, 2, client.Calls.Len())
}

func TestPipeline_SubmitSigningRejected(t *testing.T) {
	client := fake.NewClient(10)

	p := NewPipeline(client, fake.NewBadSigner())

	rec := &Recorder{}
	p.Watch().Add(rec)

	before := testutil.ToFloat64(promSubmissions.WithLabelValues("signing_rejected"))

	outcome, err := p.Submit(context.Background(), makeCreate(t, client.Params))
	require.EqualError(t, err, "failed to sign: signing rejected: fake error")
	require.True(t, xerrors.Is(err, ledger.ErrSigningRejected))
	require.Equal(t, Failed, outcome.State)
	require.Equal(t, ledger.SigningRejected, outcome.Reason)
	require.Empty(t, client.Sent)

	require.Equal(t, []State{Built, Failed}, rec.States())
	require.Equal(t, ledger.SigningRejected, rec.Events()[1].Reason)

	require.Equal(t, before+1,
		testutil.ToFloat64(promSubmissions.WithLabelValues("signing_rejected")))

	// A signer error outside of the taxonomy is also a rejection.
	signer := fake.NewSigner(sender)
	signer.ErrSign = fake.GetError()

	p = NewPipeline(client, signer)

	_, err = p.Submit(context.Background(), makeCreate(t, client.Params))
	require.EqualError(t, err, "signing rejected: "+fake.Err("failed to sign"))
	require.Equal(t, ledger.SigningRejected, ledger.ReasonOf(err))
}

func TestPipeline_SubmitRejected(t *testing.T) {
	client := fake.NewClient(10)
	client.ErrSend = fake.GetError()

	p := NewPipeline(client, fake.NewSigner(sender))

	rec := &Recorder{}
	p.Watch().Add(rec)

	outcome, err := p.Submit(context.Background(), makeCreate(t, client.Params))
	require.EqualError(t, err, "submission rejected: "+fake.Err("failed to submit"))
	require.True(t, xerrors.Is(err, ledger.ErrSubmissionRejected))
	require.Equal(t, ledger.SubmissionRejected, outcome.Reason)
	require.Equal(t, []State{Built, Signed, Failed}, rec.States())
}

func TestPipeline_SubmitConfirmationTimeout(t *testing.T) {
	client := fake.NewClient(10)
	client.ErrWait = ledger.NewError(ledger.ConfirmationTimeout, xerrors.New("not committed after 4 rounds"))

	p := NewPipeline(client, fake.NewSigner(sender))

	rec := &Recorder{}
	p.Watch().Add(rec)

	outcome, err := p.Submit(context.Background(), makeCreate(t, client.Params))
	require.EqualError(t, err,
		"failed to confirm: confirmation timeout: not committed after 4 rounds")
	require.True(t, xerrors.Is(err, ledger.ErrConfirmationTimeout))
	require.Equal(t, ledger.ConfirmationTimeout, outcome.Reason)
	require.Equal(t, []State{Built, Signed, Submitted, Failed}, rec.States())

	// The ledger can also reject the transaction after it has been accepted
	// in the pool.
	client.ErrWait = ledger.NewError(ledger.SubmissionRejected, xerrors.New("overspend"))

	outcome, err = p.Submit(context.Background(), makeCreate(t, client.Params))
	require.True(t, xerrors.Is(err, ledger.ErrSubmissionRejected))
	require.Equal(t, ledger.SubmissionRejected, outcome.Reason)

	client.ErrWait = fake.GetError()

	outcome, err = p.Submit(context.Background(), makeCreate(t, client.Params))
	require.EqualError(t, err, "confirmation timeout: "+fake.Err("failed to confirm"))
	require.Equal(t, ledger.ConfirmationTimeout, outcome.Reason)
}

func TestPipeline_Tracing(t *testing.T) {
	tracer := mocktracer.New()

	client := fake.NewClient(10)
	client.Info.ApplicationIndex = 9

	p := NewPipeline(client, fake.NewSigner(sender), WithTracer(tracer))

	_, err := p.Submit(context.Background(), makeCreate(t, client.Params))
	require.NoError(t, err)

	names := []string{}
	for _, span := range tracer.FinishedSpans() {
		names = append(names, span.OperationName)
	}

	require.Equal(t, []string{"sign", "send", "confirm", "readback", "submit"}, names)

	tracer.Reset()

	client.ErrSend = fake.GetError()

	_, err = p.Submit(context.Background(), makeCreate(t, client.Params))
	require.Error(t, err)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 3)
	require.Equal(t, true, spans[2].Tag("error"))
	require.Equal(t, "submission rejected", spans[2].Tag("reason"))
}

func TestWatcher_AddRemove(t *testing.T) {
	watcher := NewWatcher()

	rec := &Recorder{}
	watcher.Add(rec)
	watcher.Add(rec)
	require.Len(t, watcher.observers, 1)

	watcher.Notify(Event{State: Built})
	require.Equal(t, []State{Built}, rec.States())

	watcher.Remove(rec)
	require.Len(t, watcher.observers, 0)

	watcher.Notify(Event{State: Signed})
	require.Len(t, rec.Events(), 1)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeCreate(t *testing.T, params types.SuggestedParams) types.Transaction {
	builder := txn.NewBuilder(txn.Programs{
		Approval: []byte("approval"),
		Clear:    []byte("clear"),
	})

	tx, err := builder.BuildCreate(params, sender, post.Draft{
		Title:   "T",
		Image:   "http://x",
		Content: "C",
	})
	require.NoError(t, err)

	return tx
}
