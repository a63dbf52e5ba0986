package blog

import (
	"strings"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/chainblog/core/store"
	"go.dedis.ch/chainblog/encoding"
	"go.dedis.ch/chainblog/internal/testing/fake"
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/post"
)

const (
	creator = "CREATOR"
	voter   = "VOTER"
)

func TestApprovalSource(t *testing.T) {
	source := string(ApprovalSource(DefaultNote))

	require.NotContains(t, source, NotePlaceholder)
	require.Contains(t, source, "byte b64 YmxvZy1kYXBwOnV2Mg==")
	require.True(t, strings.HasPrefix(source, "#pragma version 6"))

	require.Equal(t, "#pragma version 6\nint 1\nreturn\n", string(ClearSource()))
}

func TestContract_Execute(t *testing.T) {
	contract := NewContract(DefaultNote, post.NewLayout())
	contract.cmd = fakeCmd{}

	err := contract.Execute(fake.NewSnapshot(), Call{})
	require.NoError(t, err)

	err = contract.Execute(fake.NewSnapshot(), makeCall(CmdEdit))
	require.NoError(t, err)

	err = contract.Execute(fake.NewSnapshot(), makeCall(CmdUpvote))
	require.NoError(t, err)

	err = contract.Execute(fake.NewSnapshot(), makeCall(CmdDownvote))
	require.NoError(t, err)

	err = contract.Execute(fake.NewSnapshot(), Call{
		ApplicationID: 1,
		OnCompletion:  types.DeleteApplicationOC,
	})
	require.NoError(t, err)

	contract.cmd = fakeCmd{err: fake.GetError()}

	err = contract.Execute(fake.NewSnapshot(), Call{})
	require.EqualError(t, err, fake.Err("failed to create"))

	err = contract.Execute(fake.NewSnapshot(), makeCall(CmdEdit))
	require.EqualError(t, err, fake.Err("failed to edit"))

	err = contract.Execute(fake.NewSnapshot(), makeCall(CmdUpvote))
	require.EqualError(t, err, fake.Err("failed to upvote"))

	err = contract.Execute(fake.NewSnapshot(), makeCall(CmdDownvote))
	require.EqualError(t, err, fake.Err("failed to downvote"))

	err = contract.Execute(fake.NewSnapshot(), Call{
		ApplicationID: 1,
		OnCompletion:  types.DeleteApplicationOC,
	})
	require.EqualError(t, err, fake.Err("failed to delete"))

	err = contract.Execute(fake.NewSnapshot(), Call{
		ApplicationID: 1,
		OnCompletion:  types.OptInOC,
	})
	require.EqualError(t, err, "unsupported on-completion: 1")

	err = contract.Execute(fake.NewSnapshot(), Call{ApplicationID: 1})
	require.EqualError(t, err, "missing command")

	err = contract.Execute(fake.NewSnapshot(), makeCall("fake"))
	require.EqualError(t, err, "unknown command: fake")
}

func TestCommand_Create(t *testing.T) {
	contract := NewContract(DefaultNote, post.NewLayout())
	cmd := blogCommand{Contract: &contract}

	snap := fake.NewSnapshot()

	err := cmd.create(snap, makeCreate("Hello", "http://img", "World"))
	require.NoError(t, err)

	p := decode(t, snap)
	require.Equal(t, "Hello", p.Title)
	require.Equal(t, "http://img", p.Image)
	require.Equal(t, "World", p.Content)
	require.Equal(t, uint64(0), p.Upvotes)
	require.Equal(t, uint64(0), p.Downvotes)
	require.Equal(t, 5, snap.Len())

	err = cmd.create(snap, Call{Args: [][]byte{{}}, Note: []byte(DefaultNote)})
	require.EqualError(t, err, "expected 3 arguments, got 1")

	call := makeCreate("a", "b", "c")
	call.Note = []byte("blog-dapp:v1")
	err = cmd.create(snap, call)
	require.EqualError(t, err, "invalid note 'blog-dapp:v1'")

	err = cmd.create(fake.NewBadSnapshot(), makeCreate("a", "b", "c"))
	require.EqualError(t, err, fake.Err("failed to clear 'CONTENT'"))

	err = cmd.create(fake.NewSnapshot(), makeCreate("a", "b", strings.Repeat("x", 9000)))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to encode content: content too long")
}

func TestCommand_CreateLongContent(t *testing.T) {
	contract := NewContract(DefaultNote, post.NewLayout())
	cmd := blogCommand{Contract: &contract}

	content := strings.Repeat("é", 300)

	snap := fake.NewSnapshot()
	err := cmd.create(snap, makeCreate("Hello", "http://img", content))
	require.NoError(t, err)

	p := decode(t, snap)
	require.Equal(t, content, p.Content)

	value, err := snap.Get([]byte(post.KeyContent))
	require.NoError(t, err)
	require.Nil(t, value)

	value, err = snap.Get([]byte(post.ShardKey(0)))
	require.NoError(t, err)
	require.NotNil(t, value)
}

func TestCommand_Edit(t *testing.T) {
	contract := NewContract(DefaultNote, post.NewLayout())
	cmd := blogCommand{Contract: &contract}

	snap := fake.NewSnapshot()
	err := cmd.create(snap, makeCreate("Hello", "http://img", strings.Repeat("a", 500)))
	require.NoError(t, err)

	call := makeCall(CmdEdit, "Bye", "http://other", "short")
	call.Sender = creator

	err = cmd.edit(snap, call)
	require.NoError(t, err)

	p := decode(t, snap)
	require.Equal(t, "Bye", p.Title)
	require.Equal(t, "http://other", p.Image)
	require.Equal(t, "short", p.Content)

	// The shards of the previous content are cleared.
	value, err := snap.Get([]byte(post.ShardKey(0)))
	require.NoError(t, err)
	require.Nil(t, value)

	call.GroupSize = 2
	err = cmd.edit(snap, call)
	require.EqualError(t, err, "group of 2 transactions")

	call = makeCall(CmdEdit, "a", "b", "c")
	call.Sender = voter
	err = cmd.edit(snap, call)
	require.EqualError(t, err, "sender VOTER is not the creator")

	call = makeCall(CmdEdit, "a")
	call.Sender = creator
	err = cmd.edit(snap, call)
	require.EqualError(t, err, "expected 4 arguments, got 2")

	call = makeCall(CmdEdit, "a", "b", "c")
	call.Sender = creator
	err = cmd.edit(fake.NewBadSnapshot(), call)
	require.EqualError(t, err, fake.Err("failed to clear 'CONTENT'"))
}

func TestCommand_Vote(t *testing.T) {
	contract := NewContract(DefaultNote, post.NewLayout())
	cmd := blogCommand{Contract: &contract}

	snap := fake.NewSnapshot()
	err := cmd.create(snap, makeCreate("Hello", "http://img", "World"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		err = cmd.vote(snap, makeCall(CmdUpvote), post.Upvote)
		require.NoError(t, err)
	}

	err = cmd.vote(snap, makeCall(CmdDownvote), post.Downvote)
	require.NoError(t, err)

	p := decode(t, snap)
	require.Equal(t, uint64(3), p.Upvotes)
	require.Equal(t, uint64(1), p.Downvotes)

	// A missing counter starts from zero.
	err = cmd.vote(fake.NewSnapshot(), makeCall(CmdUpvote), post.Upvote)
	require.NoError(t, err)

	call := makeCall(CmdUpvote)
	call.GroupSize = 3
	err = cmd.vote(snap, call, post.Upvote)
	require.EqualError(t, err, "group of 3 transactions")

	err = cmd.vote(snap, makeCall(CmdUpvote, "extra"), post.Upvote)
	require.EqualError(t, err, "expected 1 argument, got 2")

	err = cmd.vote(fake.NewBadSnapshot(), makeCall(CmdUpvote), post.Upvote)
	require.EqualError(t, err, fake.Err("failed to read counter"))

	snap = fake.NewSnapshot()
	require.NoError(t, setBytes(snap, post.KeyUpvote, []byte("abc")))
	err = cmd.vote(snap, makeCall(CmdUpvote), post.Upvote)
	require.EqualError(t, err, "failed to read counter: 'UPVOTE' is not an integer")

	snap = fake.NewSnapshot()
	snap.ErrWrite = fake.GetError()
	err = cmd.vote(snap, makeCall(CmdUpvote), post.Upvote)
	require.EqualError(t, err, fake.Err("failed to set counter"))
}

func TestCommand_Delete(t *testing.T) {
	contract := NewContract(DefaultNote, post.NewLayout())
	cmd := blogCommand{Contract: &contract}

	err := cmd.delete(Call{Sender: creator, Creator: creator})
	require.NoError(t, err)

	err = cmd.delete(Call{Sender: voter, Creator: creator})
	require.EqualError(t, err, "sender VOTER is not the creator")
}

func TestToLedger(t *testing.T) {
	value, err := ToLedger([]byte{tagBytes, 'a', 'b'})
	require.NoError(t, err)
	require.Equal(t, ledger.Value{Type: ledger.BytesType, Bytes: "YWI="}, value)

	value, err = ToLedger([]byte{tagUint, 0, 0, 0, 0, 0, 0, 1, 0})
	require.NoError(t, err)
	require.Equal(t, ledger.Value{Type: ledger.UintType, Uint: 256}, value)

	_, err = ToLedger(nil)
	require.EqualError(t, err, "empty value")

	_, err = ToLedger([]byte{tagUint, 1})
	require.EqualError(t, err, "invalid integer of 1 bytes")

	_, err = ToLedger([]byte{5})
	require.EqualError(t, err, "unknown tag 5")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeCall(cmd Command, args ...string) Call {
	call := Call{
		ApplicationID: 1,
		OnCompletion:  types.NoOpOC,
		Creator:       creator,
		Args:          [][]byte{[]byte(cmd)},
	}

	for _, arg := range args {
		call.Args = append(call.Args, []byte(arg))
	}

	return call
}

func makeCreate(title, image, content string) Call {
	return Call{
		Sender:  creator,
		Creator: creator,
		Note:    []byte(DefaultNote),
		Args:    [][]byte{[]byte(title), []byte(image), []byte(content)},
	}
}

func decode(t *testing.T, snap *fake.InMemorySnapshot) post.Post {
	app := ledger.Application{ID: 1, Creator: creator}

	err := snap.ForEach(func(key, value []byte) error {
		v, err := ToLedger(value)
		if err != nil {
			return err
		}

		app.GlobalState = append(app.GlobalState, ledger.KeyValue{
			Key:   encoding.BytesToBase64(key),
			Value: v,
		})

		return nil
	})
	require.NoError(t, err)

	p, err := post.NewLayout().Decode(app)
	require.NoError(t, err)

	return p
}

type fakeCmd struct {
	err error
}

func (c fakeCmd) create(snap store.Snapshot, call Call) error {
	return c.err
}

func (c fakeCmd) edit(snap store.Snapshot, call Call) error {
	return c.err
}

func (c fakeCmd) vote(snap store.Snapshot, call Call, dir post.Direction) error {
	return c.err
}

func (c fakeCmd) delete(call Call) error {
	return c.err
}
