package ledger

import (
	"fmt"

	"go.dedis.ch/chainblog/encoding"
)

// Reason is the cause of a failed operation.
type Reason string

const (
	// SigningRejected is the reason when the signer declines the transaction
	// or is unavailable.
	SigningRejected Reason = "signing rejected"

	// SubmissionRejected is the reason when the ledger refuses the signed
	// transaction.
	SubmissionRejected Reason = "submission rejected"

	// ConfirmationTimeout is the reason when the transaction is not committed
	// within the round budget.
	ConfirmationTimeout Reason = "confirmation timeout"

	// CodecError is the reason when a value cannot be decoded.
	CodecError Reason = "codec error"

	// NotFound is the reason when an application or an account is missing or
	// deleted.
	NotFound Reason = "not found"

	// Unauthorized is the reason when the account is not allowed to perform
	// the action on a post.
	Unauthorized Reason = "unauthorized"
)

var (
	// ErrSigningRejected matches errors with the SigningRejected reason.
	ErrSigningRejected = &Error{Reason: SigningRejected}

	// ErrSubmissionRejected matches errors with the SubmissionRejected reason.
	ErrSubmissionRejected = &Error{Reason: SubmissionRejected}

	// ErrConfirmationTimeout matches errors with the ConfirmationTimeout
	// reason.
	ErrConfirmationTimeout = &Error{Reason: ConfirmationTimeout}

	// ErrCodec matches errors with the CodecError reason.
	ErrCodec = &Error{Reason: CodecError}

	// ErrNotFound matches errors with the NotFound reason.
	ErrNotFound = &Error{Reason: NotFound}

	// ErrUnauthorized matches errors with the Unauthorized reason.
	ErrUnauthorized = &Error{Reason: Unauthorized}
)

// Error is an error of one of the reasons of the taxonomy. None of them is
// retried by the client.
type Error struct {
	Reason Reason
	Err    error
}

// NewError returns an error of the reason caused by err.
func NewError(reason Reason, err error) *Error {
	return &Error{
		Reason: reason,
		Err:    err,
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}

	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

// Is returns true if the target is an error of the same reason. A codec error
// of the encoding package also matches the CodecError reason.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if ok {
		return other.Reason == e.Reason
	}

	return e.Reason == CodecError && target == encoding.ErrCodec
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf returns the reason of the error, or an empty reason if it is not
// part of the taxonomy.
func ReasonOf(err error) Reason {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Reason
		case encoding.CodecError:
			return CodecError
		}

		wrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}

		err = wrapper.Unwrap()
	}

	return ""
}
