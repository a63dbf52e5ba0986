// Package blog implements the operations of a user of the blog.
//
// The service ties the capabilities together: the wallet of the user, the
// ledger node and the indexing service. A mutation builds exactly one
// transaction, submits it and then lists the posts again, as the state is
// always read back from the ledger.
package blog

import (
	"context"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/types"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"
	"go.dedis.ch/chainblog"
	contract "go.dedis.ch/chainblog/contracts/blog"
	"go.dedis.ch/chainblog/core/pipeline"
	"go.dedis.ch/chainblog/core/projection"
	"go.dedis.ch/chainblog/core/txn"
	"go.dedis.ch/chainblog/internal/tracing"
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/post"
	"go.dedis.ch/chainblog/wallet"
	"golang.org/x/xerrors"
)

// Builder is the interface of the transaction builder.
type Builder interface {
	BuildCreate(params types.SuggestedParams, sender string, draft post.Draft) (types.Transaction, error)
	BuildEdit(params types.SuggestedParams, sender string, id uint64, draft post.Draft) (types.Transaction, error)
	BuildVote(params types.SuggestedParams, sender string, id uint64, dir post.Direction) (types.Transaction, error)
	BuildDelete(params types.SuggestedParams, sender string, id uint64) (types.Transaction, error)
}

// Result is the result of a mutation.
type Result struct {
	Outcome pipeline.Outcome `json:"outcome"`

	// Posts is the listing read after the transaction is confirmed.
	Posts []post.Post `json:"posts"`
}

// Option is the type of option to create a service.
type Option func(*Service)

// WithNote sets the note marker of the posts.
func WithNote(note string) Option {
	return func(s *Service) {
		s.note = note
	}
}

// WithWaitRounds sets the number of rounds a transaction has to be confirmed.
func WithWaitRounds(rounds uint64) Option {
	return func(s *Service) {
		s.rounds = rounds
	}
}

// WithMinRound ignores the posts created before the round.
func WithMinRound(round uint64) Option {
	return func(s *Service) {
		s.minRound = round
	}
}

// WithLayout sets the layout of the posts.
func WithLayout(layout post.Layout) Option {
	return func(s *Service) {
		s.layout = layout
	}
}

// WithSchema sets the state schemas of the created applications.
func WithSchema(global, local types.StateSchema) Option {
	return func(s *Service) {
		s.global = global
		s.local = local
	}
}

// WithBuilder sets the transaction builder. By default, the programs are
// compiled by the ledger node when the first transaction is built.
func WithBuilder(builder Builder) Option {
	return func(s *Service) {
		s.builder = builder
	}
}

// WithTracer sets the tracer of the operations.
func WithTracer(tracer opentracing.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// Service is the entry point of the operations on the blog.
type Service struct {
	sync.Mutex

	client   ledger.Client
	indexer  ledger.Indexer
	signer   wallet.Signer
	note     string
	rounds   uint64
	minRound uint64
	layout   post.Layout
	global   types.StateSchema
	local    types.StateSchema
	tracer   opentracing.Tracer
	builder  Builder
	pipeline *pipeline.Pipeline
	reader   *projection.Reader
	account  wallet.Account
	logger   zerolog.Logger
}

// NewService creates a service over the capabilities.
func NewService(client ledger.Client, indexer ledger.Indexer, signer wallet.Signer,
	opts ...Option) *Service {

	s := &Service{
		client:  client,
		indexer: indexer,
		signer:  signer,
		note:    contract.DefaultNote,
		rounds:  pipeline.DefaultWaitRounds,
		layout:  post.NewLayout(),
		global:  txn.DefaultGlobalSchema,
		tracer:  opentracing.GlobalTracer(),
		logger:  chainblog.Logger.With().Str("component", "blog").Logger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.pipeline = pipeline.NewPipeline(client, signer,
		pipeline.WithWaitRounds(s.rounds),
		pipeline.WithTracer(s.tracer))

	s.reader = projection.NewReader(indexer,
		projection.WithNote(s.note),
		projection.WithMinRound(s.minRound),
		projection.WithLayout(s.layout),
		projection.WithTracer(s.tracer))

	return s
}

// Watch returns the observable of the submissions.
func (s *Service) Watch() pipeline.Observable {
	return s.pipeline.Watch()
}

// Connect connects the wallet and returns its account.
func (s *Service) Connect(ctx context.Context) (wallet.Account, error) {
	account, err := s.signer.Connect(ctx)
	if err != nil {
		return wallet.Account{}, xerrors.Errorf("failed to connect wallet: %w", err)
	}

	s.Lock()
	s.account = account
	s.Unlock()

	s.logger.Info().Str("address", account.Address).Str("name", account.Name).Msg("connected")

	return account, nil
}

// Account returns the connected account, or an empty one.
func (s *Service) Account() wallet.Account {
	s.Lock()
	defer s.Unlock()

	return s.account
}

// Balance returns the record of the connected account.
func (s *Service) Balance(ctx context.Context) (ledger.Account, error) {
	account, err := s.connected()
	if err != nil {
		return ledger.Account{}, err
	}

	record, err := s.indexer.LookupAccount(ctx, account.Address)
	if err != nil {
		return ledger.Account{}, xerrors.Errorf("failed to lookup account: %w", err)
	}

	return record, nil
}

// List returns the posts.
func (s *Service) List(ctx context.Context) ([]post.Post, error) {
	return s.reader.ListPosts(ctx)
}

// Get returns the post.
func (s *Service) Get(ctx context.Context, id uint64) (post.Post, error) {
	return s.reader.GetPost(ctx, id)
}

// Create creates a post owned by the connected account. The outcome carries
// the identifier of the new post.
func (s *Service) Create(ctx context.Context, draft post.Draft) (Result, error) {
	return s.mutate(ctx, "create", func(b Builder, params types.SuggestedParams,
		sender string) (types.Transaction, error) {

		return b.BuildCreate(params, sender, draft)
	})
}

// Edit replaces the fields of a post of the connected account.
func (s *Service) Edit(ctx context.Context, id uint64, draft post.Draft) (Result, error) {
	err := s.authorize(ctx, id, txn.ActionEdit)
	if err != nil {
		return Result{}, err
	}

	return s.mutate(ctx, "edit", func(b Builder, params types.SuggestedParams,
		sender string) (types.Transaction, error) {

		return b.BuildEdit(params, sender, id, draft)
	})
}

// Vote votes for a post of another account.
func (s *Service) Vote(ctx context.Context, id uint64, dir post.Direction) (Result, error) {
	err := s.authorize(ctx, id, txn.ActionVote)
	if err != nil {
		return Result{}, err
	}

	return s.mutate(ctx, string(dir), func(b Builder, params types.SuggestedParams,
		sender string) (types.Transaction, error) {

		return b.BuildVote(params, sender, id, dir)
	})
}

// Delete deletes a post of the connected account.
func (s *Service) Delete(ctx context.Context, id uint64) (Result, error) {
	err := s.authorize(ctx, id, txn.ActionDelete)
	if err != nil {
		return Result{}, err
	}

	return s.mutate(ctx, "delete", func(b Builder, params types.SuggestedParams,
		sender string) (types.Transaction, error) {

		return b.BuildDelete(params, sender, id)
	})
}

type buildFn func(b Builder, params types.SuggestedParams, sender string) (types.Transaction, error)

func (s *Service) mutate(ctx context.Context, operation string, build buildFn) (Result, error) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, s.tracer, operation)
	defer span.Finish()

	span.SetTag(tracing.OperationTag, operation)

	account, err := s.connected()
	if err != nil {
		return Result{}, err
	}

	builder, err := s.getBuilder(ctx)
	if err != nil {
		return Result{}, err
	}

	params, err := s.client.SuggestedParams(ctx)
	if err != nil {
		return Result{}, xerrors.Errorf("failed to get params: %w", err)
	}

	tx, err := build(builder, params, account.Address)
	if err != nil {
		return Result{}, xerrors.Errorf("failed to build transaction: %w", err)
	}

	outcome, err := s.pipeline.Submit(ctx, tx)
	if err != nil {
		return Result{Outcome: outcome}, xerrors.Errorf("failed to %s: %w", operation, err)
	}

	s.logger.Info().
		Str("operation", operation).
		Str("txid", outcome.TxID).
		Uint64("app", outcome.ApplicationID).
		Msg("post updated")

	posts, err := s.reader.ListPosts(ctx)
	if err != nil {
		return Result{Outcome: outcome}, xerrors.Errorf("failed to refresh posts: %w", err)
	}

	return Result{Outcome: outcome, Posts: posts}, nil
}

// authorize reads the post and verifies that the connected account can perform
// the action.
func (s *Service) authorize(ctx context.Context, id uint64, action txn.Action) error {
	account, err := s.connected()
	if err != nil {
		return err
	}

	p, err := s.reader.GetPost(ctx, id)
	if err != nil {
		return xerrors.Errorf("failed to read post: %w", err)
	}

	return txn.Authorize(account.Address, p, action)
}

func (s *Service) connected() (wallet.Account, error) {
	account := s.Account()
	if account.Address == "" {
		return account, ledger.NewError(ledger.Unauthorized, xerrors.New("no account connected"))
	}

	return account, nil
}

// getBuilder returns the transaction builder, compiling the programs on the
// first call. The lock is not held while the ledger compiles.
func (s *Service) getBuilder(ctx context.Context) (Builder, error) {
	s.Lock()
	builder := s.builder
	s.Unlock()

	if builder != nil {
		return builder, nil
	}

	programs, err := txn.Compile(ctx, s.client, s.note)
	if err != nil {
		return nil, xerrors.Errorf("failed to compile programs: %w", err)
	}

	s.Lock()
	defer s.Unlock()

	// Another call may have compiled the programs in the meantime.
	if s.builder == nil {
		s.builder = txn.NewBuilder(programs,
			txn.WithNote(s.note),
			txn.WithGlobalSchema(s.global),
			txn.WithLocalSchema(s.local))
	}

	return s.builder, nil
}
