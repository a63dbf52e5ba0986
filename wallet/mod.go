// Package wallet defines the signer capability that authorizes the
// transactions of an account, and provides a wallet backed by a key file.
package wallet

import (
	"context"
)

// Account is the account exposed by a connected wallet.
type Account struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Signer is the capability of a wallet. Both operations fail with the
// SigningRejected reason when the wallet declines or is unavailable.
type Signer interface {
	// Connect returns the account of the wallet and makes it available for
	// signing.
	Connect(ctx context.Context) (Account, error)

	// SignTransaction signs the canonical encoding of a transaction and
	// returns the encoded signed transaction.
	SignTransaction(ctx context.Context, raw []byte) ([]byte, error)
}
