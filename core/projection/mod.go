// Package projection reads the posts from the indexing service.
//
// The posts are never cached: every listing searches the creation
// transactions that carry the note marker, then fetches the application of
// each one and decodes its global state. A record that cannot be fetched or
// decoded is skipped so that one broken post does not hide the others.
package projection

import (
	"context"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"
	"go.dedis.ch/chainblog"
	"go.dedis.ch/chainblog/contracts/blog"
	"go.dedis.ch/chainblog/encoding"
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/post"
	"golang.org/x/xerrors"
)

// Option is the type of option to create a reader.
type Option func(*Reader)

// WithNote sets the note marker of the creation transactions.
func WithNote(note string) Option {
	return func(r *Reader) {
		r.note = encoding.TextToWire(note)
	}
}

// WithMinRound ignores the transactions confirmed before the round.
func WithMinRound(round uint64) Option {
	return func(r *Reader) {
		r.minRound = round
	}
}

// WithLayout sets the layout used to decode the posts.
func WithLayout(layout post.Layout) Option {
	return func(r *Reader) {
		r.layout = layout
	}
}

// WithPageSize sets the number of transactions requested per page.
func WithPageSize(size uint64) Option {
	return func(r *Reader) {
		r.pageSize = size
	}
}

// WithTracer sets the tracer of the listings. The global tracer is used by
// default.
func WithTracer(tracer opentracing.Tracer) Option {
	return func(r *Reader) {
		r.tracer = tracer
	}
}

// Reader projects the posts out of the indexing service.
type Reader struct {
	indexer  ledger.Indexer
	note     []byte
	minRound uint64
	pageSize uint64
	layout   post.Layout
	tracer   opentracing.Tracer
	logger   zerolog.Logger
}

// NewReader creates a reader of the posts indexed by the service.
func NewReader(indexer ledger.Indexer, opts ...Option) *Reader {
	r := &Reader{
		indexer: indexer,
		note:    encoding.TextToWire(blog.DefaultNote),
		layout:  post.NewLayout(),
		tracer:  opentracing.GlobalTracer(),
		logger:  chainblog.Logger.With().Str("component", "projection").Logger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ListPosts returns the posts in the order of the indexing service. Deleted
// posts and posts that cannot be read are left out. It only fails when the
// search itself fails.
func (r *Reader) ListPosts(ctx context.Context) ([]post.Post, error) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, r.tracer, "list")
	defer span.Finish()

	filter := ledger.Filter{
		NotePrefix: r.note,
		TxType:     ledger.TxTypeApplication,
		MinRound:   r.minRound,
		Limit:      r.pageSize,
	}

	posts := []post.Post{}
	seen := make(map[string]struct{})

	for {
		page, err := r.indexer.SearchTransactions(ctx, filter)
		if err != nil {
			return nil, xerrors.Errorf("failed to search transactions: %w", err)
		}

		for _, tx := range page.Transactions {
			if tx.CreatedApplicationID == 0 {
				continue
			}

			p, ok := r.project(ctx, tx.CreatedApplicationID)
			if ok {
				posts = append(posts, p)
			}
		}

		if page.NextToken == "" || len(page.Transactions) == 0 {
			break
		}

		// A token that was already followed would replay the same pages.
		_, found := seen[page.NextToken]
		if found {
			r.logger.Warn().Str("token", page.NextToken).Msg("indexer repeated a page token")
			break
		}

		seen[page.NextToken] = struct{}{}
		filter.Next = page.NextToken
	}

	promPosts.Set(float64(len(posts)))

	span.SetTag("posts", len(posts))

	r.logger.Debug().Int("posts", len(posts)).Msg("listed posts")

	return posts, nil
}

// GetPost returns the post of the application. It returns an error with the
// NotFound reason if the application does not exist or is deleted, and with
// the CodecError reason if it cannot be decoded.
func (r *Reader) GetPost(ctx context.Context, id uint64) (post.Post, error) {
	app, err := r.indexer.LookupApplication(ctx, id, true)
	if err != nil {
		return post.Post{}, xerrors.Errorf("failed to lookup application: %w", err)
	}

	if app.Deleted {
		return post.Post{}, ledger.NewError(ledger.NotFound,
			xerrors.Errorf("post %d is deleted", id))
	}

	p, err := r.layout.Decode(app)
	if err != nil {
		return post.Post{}, ledger.NewError(ledger.CodecError,
			xerrors.Errorf("failed to decode post %d: %w", id, err))
	}

	return p, nil
}

func (r *Reader) project(ctx context.Context, id uint64) (post.Post, bool) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, r.tracer, "fetch")
	defer span.Finish()

	span.SetTag("app", id)

	app, err := r.indexer.LookupApplication(ctx, id, true)
	if err != nil {
		r.skip(id, "lookup", err)
		return post.Post{}, false
	}

	if app.Deleted {
		return post.Post{}, false
	}

	p, err := r.layout.Decode(app)
	if err != nil {
		r.skip(id, "codec", err)
		return post.Post{}, false
	}

	return p, true
}

func (r *Reader) skip(id uint64, reason string, err error) {
	promSkipped.WithLabelValues(reason).Inc()

	r.logger.Warn().Err(err).Uint64("app", id).Str("reason", reason).Msg("skipping post")
}
