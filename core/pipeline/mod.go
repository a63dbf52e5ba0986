// Package pipeline implements the submission of the transactions of the blog.
//
// Each submission goes through the states
//
//	Built -> Signed -> Submitted -> Confirmed
//
// and ends in the Failed state as soon as a step fails. A failure is never
// retried: the reason is reported to the caller which decides what to do. The
// steps are executed one after the other as each depends on the result of the
// previous one.
package pipeline

import (
	"context"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/types"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/chainblog"
	"go.dedis.ch/chainblog/core/txn"
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/wallet"
	"golang.org/x/xerrors"
)

// DefaultWaitRounds is the number of rounds a submitted transaction has to be
// confirmed.
const DefaultWaitRounds = 4

// State is the state of a submission.
type State string

const (
	// Built is the state of a transaction ready to be signed.
	Built State = "built"

	// Signed is the state of a transaction signed by the wallet.
	Signed State = "signed"

	// Submitted is the state of a transaction accepted by the ledger node.
	Submitted State = "submitted"

	// Confirmed is the state of a transaction committed in a round.
	Confirmed State = "confirmed"

	// Failed is the state of a transaction that did not make it.
	Failed State = "failed"
)

// Outcome is the result of a submission.
type Outcome struct {
	// Submission is the correlation identifier of the submission.
	Submission string `json:"submission"`

	TxID   string        `json:"txid"`
	State  State         `json:"state"`
	Reason ledger.Reason `json:"reason,omitempty"`

	ConfirmedRound uint64 `json:"confirmed_round,omitempty"`

	// ApplicationID is the identifier of the created post, or zero when the
	// transaction is not a creation.
	ApplicationID uint64 `json:"application_id,omitempty"`
}

// Option is the type of option to create a pipeline.
type Option func(*Pipeline)

// WithWaitRounds sets the number of rounds a transaction has to be confirmed.
func WithWaitRounds(rounds uint64) Option {
	return func(p *Pipeline) {
		p.rounds = rounds
	}
}

// WithTracer sets the tracer of the submissions. The global tracer is used by
// default.
func WithTracer(tracer opentracing.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// Pipeline signs, submits and waits for the confirmation of transactions.
type Pipeline struct {
	client  ledger.Client
	signer  wallet.Signer
	rounds  uint64
	tracer  opentracing.Tracer
	watcher *Watcher
	logger  zerolog.Logger
}

// NewPipeline creates a pipeline that signs with the wallet and submits to the
// ledger node.
func NewPipeline(client ledger.Client, signer wallet.Signer, opts ...Option) *Pipeline {
	p := &Pipeline{
		client:  client,
		signer:  signer,
		rounds:  DefaultWaitRounds,
		tracer:  opentracing.GlobalTracer(),
		watcher: NewWatcher(),
		logger:  chainblog.Logger.With().Str("component", "pipeline").Logger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Watch returns the observable that is notified of every state transition.
func (p *Pipeline) Watch() Observable {
	return p.watcher
}

// Submit takes the transaction through the states of the submission. It
// returns the outcome in any case, and an error with the reason of the failure
// if the transaction is not confirmed. The identifier of the application is
// read back when the transaction creates one.
func (p *Pipeline) Submit(ctx context.Context, tx types.Transaction) (Outcome, error) {
	s := submission{
		Pipeline: p,
		outcome: Outcome{
			Submission: xid.New().String(),
			TxID:       txn.ID(tx),
		},
	}

	s.logger = p.logger.With().Str("submission", s.outcome.Submission).Logger()

	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, p.tracer, "submit")
	defer span.Finish()

	span.SetTag("submission", s.outcome.Submission)

	s.transition(Built)

	blob, err := s.sign(ctx, tx)
	if err != nil {
		return s.fail(span, ledger.SigningRejected, xerrors.Errorf("failed to sign: %w", err))
	}

	s.transition(Signed)

	txID, err := s.send(ctx, blob)
	if err != nil {
		return s.fail(span, ledger.SubmissionRejected, xerrors.Errorf("failed to submit: %w", err))
	}

	s.outcome.TxID = txID
	s.logger = s.logger.With().Str("txid", txID).Logger()

	s.transition(Submitted)

	pending, err := s.wait(ctx, txID)
	if err != nil {
		return s.fail(span, ledger.ConfirmationTimeout, xerrors.Errorf("failed to confirm: %w", err))
	}

	s.outcome.ConfirmedRound = pending.ConfirmedRound

	if pending.ConfirmedRound >= uint64(tx.FirstValid) {
		promConfirmationRounds.Observe(float64(pending.ConfirmedRound - uint64(tx.FirstValid)))
	}

	if isCreate(tx) {
		appID, err := s.readApplication(ctx, txID, pending)
		if err != nil {
			return s.fail(span, ledger.NotFound, xerrors.Errorf("failed to read application: %w", err))
		}

		s.outcome.ApplicationID = appID
	}

	s.transition(Confirmed)

	promSubmissions.WithLabelValues(string(Confirmed)).Inc()

	s.logger.Info().
		Uint64("round", s.outcome.ConfirmedRound).
		Uint64("app", s.outcome.ApplicationID).
		Msg("transaction confirmed")

	return s.outcome, nil
}

// isCreate returns true if the transaction creates an application.
func isCreate(tx types.Transaction) bool {
	return tx.Type == types.ApplicationCallTx && tx.ApplicationID == 0 &&
		tx.OnCompletion == types.NoOpOC
}

// submission is the state of a single call to Submit.
type submission struct {
	*Pipeline

	outcome Outcome
	logger  zerolog.Logger
}

func (s *submission) sign(ctx context.Context, tx types.Transaction) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, s.tracer, "sign")
	defer span.Finish()

	return s.signer.SignTransaction(ctx, txn.Encode(tx))
}

func (s *submission) send(ctx context.Context, blob []byte) (string, error) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, s.tracer, "send")
	defer span.Finish()

	return s.client.SendRawTransaction(ctx, blob)
}

func (s *submission) wait(ctx context.Context, txID string) (ledger.PendingTransaction, error) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, s.tracer, "confirm")
	defer span.Finish()

	span.SetTag("rounds", s.rounds)

	return s.client.WaitForConfirmation(ctx, txID, s.rounds)
}

func (s *submission) readApplication(ctx context.Context, txID string,
	pending ledger.PendingTransaction) (uint64, error) {

	if pending.ApplicationIndex != 0 {
		return pending.ApplicationIndex, nil
	}

	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, s.tracer, "readback")
	defer span.Finish()

	info, err := s.client.PendingTransaction(ctx, txID)
	if err != nil {
		return 0, err
	}

	if info.ApplicationIndex == 0 {
		return 0, xerrors.Errorf("no application created by %s", txID)
	}

	return info.ApplicationIndex, nil
}

func (s *submission) transition(state State) {
	s.outcome.State = state

	s.logger.Debug().Str("state", string(state)).Msg("transition")

	s.watcher.Notify(Event{
		Submission: s.outcome.Submission,
		TxID:       s.outcome.TxID,
		State:      state,
	})
}

// fail moves the submission to the Failed state. The reason is the one of the
// error when it has one, otherwise it is the reason of the step.
func (s *submission) fail(span opentracing.Span, reason ledger.Reason, err error) (Outcome, error) {
	if ledger.ReasonOf(err) == "" {
		err = ledger.NewError(reason, err)
	} else {
		reason = ledger.ReasonOf(err)
	}

	s.outcome.State = Failed
	s.outcome.Reason = reason

	span.SetTag("error", true)
	span.SetTag("reason", string(reason))

	promSubmissions.WithLabelValues(strings.ReplaceAll(string(reason), " ", "_")).Inc()

	s.logger.Warn().Err(err).Str("reason", string(reason)).Msg("submission failed")

	s.watcher.Notify(Event{
		Submission: s.outcome.Submission,
		TxID:       s.outcome.TxID,
		State:      Failed,
		Reason:     reason,
	})

	return s.outcome, err
}
