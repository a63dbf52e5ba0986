package encoding

import (
	"fmt"

	"golang.org/x/xerrors"
)

var errInvalidUTF8 = xerrors.New("invalid utf-8 sequence")

// ErrCodec is the sentinel matched by every CodecError.
var ErrCodec = xerrors.New("codec error")

// CodecError is returned when a value cannot be decoded from its wire
// representation.
type CodecError struct {
	Format string
	Err    error
}

// NewCodecError returns a codec error for the given format.
func NewCodecError(format string, err error) CodecError {
	return CodecError{
		Format: format,
		Err:    err,
	}
}

func (e CodecError) Error() string {
	return fmt.Sprintf("couldn't decode %s: %v", e.Format, e.Err)
}

// Is returns true for ErrCodec and for codec errors of the same format.
func (e CodecError) Is(err error) bool {
	if err == ErrCodec {
		return true
	}

	other, ok := err.(CodecError)

	return ok && other.Format == e.Format
}

func (e CodecError) Unwrap() error {
	return e.Err
}
