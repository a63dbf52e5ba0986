package fake

import (
	"context"

	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/wallet"
)

// Signer is a fake implementation of a wallet. The signed blob is the raw
// transaction prefixed by a marker.
//
// - implements wallet.Signer
type Signer struct {
	Account wallet.Account
	Raw     [][]byte

	ErrConnect error
	ErrSign    error
}

// NewSigner returns a fake signer of the given address.
func NewSigner(address string) *Signer {
	return &Signer{
		Account: wallet.Account{Address: address, Name: "fake"},
	}
}

// NewBadSigner returns a fake signer that declines every request.
func NewBadSigner() *Signer {
	return &Signer{
		ErrConnect: ledger.NewError(ledger.SigningRejected, fakeErr),
		ErrSign:    ledger.NewError(ledger.SigningRejected, fakeErr),
	}
}

// Connect implements wallet.Signer.
func (s *Signer) Connect(context.Context) (wallet.Account, error) {
	return s.Account, s.ErrConnect
}

// SignTransaction implements wallet.Signer.
func (s *Signer) SignTransaction(ctx context.Context, raw []byte) ([]byte, error) {
	if s.ErrSign != nil {
		return nil, s.ErrSign
	}

	s.Raw = append(s.Raw, raw)

	return append([]byte("signed:"), raw...), nil
}
