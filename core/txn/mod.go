// Package txn builds the transactions of the blog application.
//
// A post is an application of the ledger. It is created by an
// application-creation transaction that embeds the compiled programs, then
// updated by application calls and removed by an application-deletion
// transaction. The builder is pure: the network parameters and the programs
// are read by the caller and provided as inputs.
package txn

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"go.dedis.ch/chainblog/contracts/blog"
	"go.dedis.ch/chainblog/encoding"
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/post"
	"golang.org/x/xerrors"
)

// MaxArgsSize is the maximum size of the application arguments of a
// transaction accepted by the ledger.
const MaxArgsSize = 2048

// DefaultGlobalSchema is the global state schema of a post: the two counters,
// and the title, the image and the content slots.
var DefaultGlobalSchema = types.StateSchema{
	NumUint:      2,
	NumByteSlice: uint64(2 + post.DefaultShardBound),
}

// Programs are the compiled programs of the application.
type Programs struct {
	Approval []byte
	Clear    []byte
}

// Compile compiles the programs of the application that accepts the note.
func Compile(ctx context.Context, client ledger.Client, note string) (Programs, error) {
	approval, err := client.Compile(ctx, blog.ApprovalSource(note))
	if err != nil {
		return Programs{}, xerrors.Errorf("failed to compile approval program: %w", err)
	}

	clearProg, err := client.Compile(ctx, blog.ClearSource())
	if err != nil {
		return Programs{}, xerrors.Errorf("failed to compile clear program: %w", err)
	}

	return Programs{Approval: approval, Clear: clearProg}, nil
}

// BuilderOption is the type of option to create a builder.
type BuilderOption func(*Builder)

// WithNote sets the note marker of the creation transactions.
func WithNote(note string) BuilderOption {
	return func(b *Builder) {
		b.note = encoding.TextToWire(note)
	}
}

// WithGlobalSchema sets the global state schema of the created applications.
func WithGlobalSchema(schema types.StateSchema) BuilderOption {
	return func(b *Builder) {
		b.global = schema
	}
}

// WithLocalSchema sets the local state schema of the created applications.
func WithLocalSchema(schema types.StateSchema) BuilderOption {
	return func(b *Builder) {
		b.local = schema
	}
}

// Builder creates the unsigned transactions of the operations on a post.
type Builder struct {
	note     []byte
	programs Programs
	global   types.StateSchema
	local    types.StateSchema
}

// NewBuilder creates a builder that embeds the programs in the creation
// transactions.
func NewBuilder(programs Programs, opts ...BuilderOption) Builder {
	b := Builder{
		note:     encoding.TextToWire(blog.DefaultNote),
		programs: programs,
		global:   DefaultGlobalSchema,
	}

	for _, opt := range opts {
		opt(&b)
	}

	return b
}

// Note returns the note marker of the creation transactions.
func (b Builder) Note() []byte {
	return append([]byte{}, b.note...)
}

// BuildCreate returns the transaction that creates an application holding the
// post.
func (b Builder) BuildCreate(params types.SuggestedParams, sender string,
	draft post.Draft) (types.Transaction, error) {

	addr, err := decodeSender(sender)
	if err != nil {
		return types.Transaction{}, err
	}

	args, err := draftArgs(draft)
	if err != nil {
		return types.Transaction{}, err
	}

	tx, err := transaction.MakeApplicationCreateTx(false, b.programs.Approval,
		b.programs.Clear, b.global, b.local, args, nil, nil, nil, params, addr,
		b.Note(), types.Digest{}, [32]byte{}, types.Address{})
	if err != nil {
		return types.Transaction{}, xerrors.Errorf("failed to make transaction: %v", err)
	}

	return tx, nil
}

// BuildEdit returns the transaction that replaces the fields of the post.
func (b Builder) BuildEdit(params types.SuggestedParams, sender string, id uint64,
	draft post.Draft) (types.Transaction, error) {

	addr, err := decodeSender(sender)
	if err != nil {
		return types.Transaction{}, err
	}

	args, err := draftArgs(draft, []byte(blog.CmdEdit))
	if err != nil {
		return types.Transaction{}, err
	}

	return makeCall(id, args, params, addr)
}

// BuildVote returns the transaction that increments a counter of the post.
func (b Builder) BuildVote(params types.SuggestedParams, sender string, id uint64,
	dir post.Direction) (types.Transaction, error) {

	addr, err := decodeSender(sender)
	if err != nil {
		return types.Transaction{}, err
	}

	if !dir.Valid() {
		return types.Transaction{}, xerrors.Errorf("unknown direction '%s'", dir)
	}

	return makeCall(id, [][]byte{encoding.TextToWire(string(dir))}, params, addr)
}

// BuildDelete returns the transaction that deletes the application of the
// post.
func (b Builder) BuildDelete(params types.SuggestedParams, sender string,
	id uint64) (types.Transaction, error) {

	addr, err := decodeSender(sender)
	if err != nil {
		return types.Transaction{}, err
	}

	if id == 0 {
		return types.Transaction{}, xerrors.New("invalid post id 0")
	}

	tx, err := transaction.MakeApplicationDeleteTx(id, nil, nil, nil, nil, params,
		addr, nil, types.Digest{}, [32]byte{}, types.Address{})
	if err != nil {
		return types.Transaction{}, xerrors.Errorf("failed to make transaction: %v", err)
	}

	return tx, nil
}

// Encode returns the canonical encoding of the transaction, which is what the
// signer signs.
func Encode(tx types.Transaction) []byte {
	return msgpack.Encode(tx)
}

// ID returns the identifier of the transaction.
func ID(tx types.Transaction) string {
	return crypto.GetTxID(tx)
}

func makeCall(id uint64, args [][]byte, params types.SuggestedParams,
	sender types.Address) (types.Transaction, error) {

	if id == 0 {
		return types.Transaction{}, xerrors.New("invalid post id 0")
	}

	tx, err := transaction.MakeApplicationNoOpTx(id, args, nil, nil, nil, params,
		sender, nil, types.Digest{}, [32]byte{}, types.Address{})
	if err != nil {
		return types.Transaction{}, xerrors.Errorf("failed to make transaction: %v", err)
	}

	return tx, nil
}

func decodeSender(sender string) (types.Address, error) {
	addr, err := types.DecodeAddress(sender)
	if err != nil {
		return types.Address{}, xerrors.Errorf("invalid sender '%s': %v", sender, err)
	}

	return addr, nil
}

// draftArgs returns the application arguments of the draft, after the prefix.
func draftArgs(draft post.Draft, prefix ...[]byte) ([][]byte, error) {
	err := draft.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid draft: %v", err)
	}

	args := append(prefix,
		encoding.TextToWire(draft.Title),
		encoding.TextToWire(draft.Image),
		encoding.TextToWire(draft.Content),
	)

	size := 0
	for _, arg := range args {
		size += len(arg)
	}

	if size > MaxArgsSize {
		return nil, xerrors.Errorf("application arguments of %d bytes exceed %d",
			size, MaxArgsSize)
	}

	return args, nil
}
