// Package blog implements the application that holds a blog post on the
// ledger.
//
// The approval program is provided as a TEAL source to be compiled by the
// ledger node. The contract is the native rendition of the same program that
// the sandbox ledger executes. It stores the post with the layout of the post
// package, which additionally splits a content too large for one slot across
// the shard keys.
package blog

import (
	"bytes"
	_ "embed"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"go.dedis.ch/chainblog"
	"go.dedis.ch/chainblog/core/store"
	"go.dedis.ch/chainblog/encoding"
	"go.dedis.ch/chainblog/post"
	"golang.org/x/xerrors"
)

// DefaultNote is the marker of the creation transactions of the posts.
const DefaultNote = "blog-dapp:uv2"

// NotePlaceholder is the template variable of the approval program replaced by
// the note marker.
const NotePlaceholder = "TMPL_NOTE"

//go:embed approval.teal
var approvalSource []byte

//go:embed clear.teal
var clearSource []byte

// ApprovalSource returns the source of the approval program that accepts
// creations carrying the given note.
func ApprovalSource(note string) []byte {
	literal := []byte("b64 " + encoding.BytesToBase64(encoding.TextToWire(note)))

	return bytes.ReplaceAll(approvalSource, []byte(NotePlaceholder), literal)
}

// ClearSource returns the source of the clear-state program.
func ClearSource() []byte {
	return append([]byte{}, clearSource...)
}

// Command is the first application argument of a call.
type Command string

const (
	// CmdEdit replaces the title, the image and the content.
	CmdEdit Command = "edit"

	// CmdUpvote increments the upvote counter.
	CmdUpvote Command = Command(post.Upvote)

	// CmdDownvote increments the downvote counter.
	CmdDownvote Command = Command(post.Downvote)
)

// Call is an application call as seen by the contract.
type Call struct {
	// ApplicationID is zero for a creation.
	ApplicationID uint64
	OnCompletion  types.OnCompletion
	Sender        string

	// Creator is the address of the creator of the application.
	Creator   string
	Note      []byte
	Args      [][]byte
	GroupSize int
}

// commands defines the commands of the blog contract. This interface helps in
// testing the contract.
type commands interface {
	create(snap store.Snapshot, call Call) error
	edit(snap store.Snapshot, call Call) error
	vote(snap store.Snapshot, call Call, dir post.Direction) error
	delete(call Call) error
}

// Contract is the blog application.
type Contract struct {
	note   []byte
	layout post.Layout
	cmd    commands
}

// NewContract creates a contract that accepts creations carrying the note.
func NewContract(note string, layout post.Layout) Contract {
	contract := Contract{
		note:   encoding.TextToWire(note),
		layout: layout,
	}

	contract.cmd = blogCommand{Contract: &contract}

	return contract
}

// Execute runs the call against the global state of the application. An error
// means the call is rejected and the state must be discarded.
func (c Contract) Execute(snap store.Snapshot, call Call) error {
	if call.ApplicationID == 0 {
		err := c.cmd.create(snap, call)
		if err != nil {
			return xerrors.Errorf("failed to create: %v", err)
		}

		return nil
	}

	if call.OnCompletion == types.DeleteApplicationOC {
		err := c.cmd.delete(call)
		if err != nil {
			return xerrors.Errorf("failed to delete: %v", err)
		}

		return nil
	}

	if call.OnCompletion != types.NoOpOC {
		return xerrors.Errorf("unsupported on-completion: %d", call.OnCompletion)
	}

	if len(call.Args) == 0 {
		return xerrors.New("missing command")
	}

	cmd := Command(call.Args[0])

	switch cmd {
	case CmdEdit:
		err := c.cmd.edit(snap, call)
		if err != nil {
			return xerrors.Errorf("failed to edit: %v", err)
		}
	case CmdUpvote, CmdDownvote:
		err := c.cmd.vote(snap, call, post.Direction(cmd))
		if err != nil {
			return xerrors.Errorf("failed to %s: %v", cmd, err)
		}
	default:
		return xerrors.Errorf("unknown command: %s", cmd)
	}

	return nil
}

// blogCommand implements the commands of the blog contract.
//
// - implements commands
type blogCommand struct {
	*Contract
}

// create implements commands. It stores the post and resets the counters.
func (c blogCommand) create(snap store.Snapshot, call Call) error {
	if len(call.Args) != 3 {
		return xerrors.Errorf("expected 3 arguments, got %d", len(call.Args))
	}

	if !bytes.Equal(call.Note, c.note) {
		return xerrors.Errorf("invalid note '%s'", call.Note)
	}

	err := c.writePost(snap, call.Args[0], call.Args[1], call.Args[2])
	if err != nil {
		return err
	}

	err = setUint(snap, post.KeyUpvote, 0)
	if err != nil {
		return xerrors.Errorf("failed to set counter: %v", err)
	}

	err = setUint(snap, post.KeyDownvote, 0)
	if err != nil {
		return xerrors.Errorf("failed to set counter: %v", err)
	}

	chainblog.Logger.Debug().Str("contract", "blog").Msgf("created post '%s'", call.Args[0])

	return nil
}

// edit implements commands. Only the creator can replace the post.
func (c blogCommand) edit(snap store.Snapshot, call Call) error {
	if call.GroupSize > 1 {
		return xerrors.Errorf("group of %d transactions", call.GroupSize)
	}

	if call.Sender != call.Creator {
		return xerrors.Errorf("sender %s is not the creator", call.Sender)
	}

	if len(call.Args) != 4 {
		return xerrors.Errorf("expected 4 arguments, got %d", len(call.Args))
	}

	return c.writePost(snap, call.Args[1], call.Args[2], call.Args[3])
}

// vote implements commands. It increments the counter of the direction.
func (c blogCommand) vote(snap store.Snapshot, call Call, dir post.Direction) error {
	if call.GroupSize > 1 {
		return xerrors.Errorf("group of %d transactions", call.GroupSize)
	}

	if len(call.Args) != 1 {
		return xerrors.Errorf("expected 1 argument, got %d", len(call.Args))
	}

	count, err := getUint(snap, dir.Key())
	if err != nil {
		return xerrors.Errorf("failed to read counter: %v", err)
	}

	err = setUint(snap, dir.Key(), count+1)
	if err != nil {
		return xerrors.Errorf("failed to set counter: %v", err)
	}

	return nil
}

// delete implements commands. Only the creator can delete the application.
func (c blogCommand) delete(call Call) error {
	if call.Sender != call.Creator {
		return xerrors.Errorf("sender %s is not the creator", call.Sender)
	}

	return nil
}

// writePost writes the fields of the post. The previous content slots are cleared
// so that a layout change does not leave stale shards behind.
func (c blogCommand) writePost(snap store.Snapshot, title, image, content []byte) error {
	slots, err := c.layout.EncodeContent(string(content))
	if err != nil {
		return xerrors.Errorf("failed to encode content: %v", err)
	}

	for _, key := range c.layout.ContentKeys() {
		err = snap.Delete([]byte(key))
		if err != nil {
			return xerrors.Errorf("failed to clear '%s': %v", key, err)
		}
	}

	fields := map[string][]byte{
		post.KeyTitle: title,
		post.KeyImage: image,
	}

	for key, value := range slots {
		fields[key] = value
	}

	for key, value := range fields {
		err = setBytes(snap, key, value)
		if err != nil {
			return xerrors.Errorf("failed to set '%s': %v", key, err)
		}
	}

	return nil
}
