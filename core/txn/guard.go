package txn

import (
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/post"
	"golang.org/x/xerrors"
)

// Action is an operation on an existing post.
type Action string

const (
	// ActionEdit replaces the fields of a post.
	ActionEdit Action = "edit"

	// ActionVote votes for a post.
	ActionVote Action = "vote"

	// ActionDelete deletes a post.
	ActionDelete Action = "delete"
)

// Authorize returns an error with the Unauthorized reason if the account is
// not allowed to perform the action on the post. Only the owner edits and
// deletes a post, and only the other accounts vote for it.
func Authorize(account string, p post.Post, action Action) error {
	if account == "" {
		return ledger.NewError(ledger.Unauthorized, xerrors.New("no account connected"))
	}

	switch action {
	case ActionEdit, ActionDelete:
		if p.Owner != account {
			return ledger.NewError(ledger.Unauthorized,
				xerrors.Errorf("%s is not the owner of post %d", account, p.ID))
		}
	case ActionVote:
		if p.Owner == account {
			return ledger.NewError(ledger.Unauthorized,
				xerrors.Errorf("owner cannot vote for post %d", p.ID))
		}
	default:
		return xerrors.Errorf("unknown action '%s'", action)
	}

	return nil
}
