package wallet

import (
	"context"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"go.dedis.ch/chainblog"
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/sign/eddsa"
	"golang.org/x/xerrors"
)

// DefaultName is the name of the account of a key wallet when none is given.
const DefaultName = "key wallet"

var suite = edwards25519.NewBlakeSHA256Ed25519()

// txPrefix is the domain separator of the signed transactions.
var txPrefix = []byte("TX")

// Approver is called before a transaction is signed. The signature is declined
// when it returns an error.
type Approver func(tx types.Transaction) error

// KeyWalletOption is the type of option to create a key wallet.
type KeyWalletOption func(*KeyWallet)

// WithName sets the display name of the account.
func WithName(name string) KeyWalletOption {
	return func(w *KeyWallet) {
		w.name = name
	}
}

// WithApprover sets the function that approves every transaction before it is
// signed. Every transaction is approved by default.
func WithApprover(fn Approver) KeyWalletOption {
	return func(w *KeyWallet) {
		w.approve = fn
	}
}

// KeyWallet is a wallet that signs with an EdDSA key stored in a file.
//
// - implements wallet.Signer
type KeyWallet struct {
	sync.Mutex

	name      string
	signer    *eddsa.EdDSA
	address   types.Address
	approve   Approver
	connected bool
}

// NewKeyWallet creates a wallet from the key provided by the loader, which is
// generated when it does not exist yet.
func NewKeyWallet(loader Loader, opts ...KeyWalletOption) (*KeyWallet, error) {
	data, err := loader.LoadOrCreate(keyGenerator{})
	if err != nil {
		return nil, xerrors.Errorf("failed to load key: %v", err)
	}

	signer := &eddsa.EdDSA{}

	err = signer.UnmarshalBinary(data)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal key: %v", err)
	}

	return newKeyWallet(signer, opts...)
}

// NewRandomWallet creates a wallet with a fresh key that is not persisted.
func NewRandomWallet(opts ...KeyWalletOption) (*KeyWallet, error) {
	return newKeyWallet(eddsa.NewEdDSA(suite.RandomStream()), opts...)
}

func newKeyWallet(signer *eddsa.EdDSA, opts ...KeyWalletOption) (*KeyWallet, error) {
	pub, err := signer.Public.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal public key: %v", err)
	}

	w := &KeyWallet{
		name:    DefaultName,
		signer:  signer,
		approve: func(types.Transaction) error { return nil },
	}

	copy(w.address[:], pub)

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Address returns the address of the account of the wallet.
func (w *KeyWallet) Address() types.Address {
	return w.address
}

// Connect implements wallet.Signer.
func (w *KeyWallet) Connect(ctx context.Context) (Account, error) {
	w.Lock()
	w.connected = true
	w.Unlock()

	chainblog.Logger.Debug().Str("address", w.address.String()).Msg("wallet connected")

	return Account{
		Address: w.address.String(),
		Name:    w.name,
	}, nil
}

// SignTransaction implements wallet.Signer. It signs transactions sent by the
// account of the wallet only, after the approver accepts them.
func (w *KeyWallet) SignTransaction(ctx context.Context, raw []byte) ([]byte, error) {
	w.Lock()
	connected := w.connected
	w.Unlock()

	if !connected {
		return nil, ledger.NewError(ledger.SigningRejected, xerrors.New("wallet is not connected"))
	}

	var tx types.Transaction

	err := msgpack.Decode(raw, &tx)
	if err != nil {
		return nil, ledger.NewError(ledger.SigningRejected,
			xerrors.Errorf("failed to decode transaction: %v", err))
	}

	if tx.Sender != w.address {
		return nil, ledger.NewError(ledger.SigningRejected,
			xerrors.Errorf("sender %s is not the wallet account", tx.Sender))
	}

	err = w.approve(tx)
	if err != nil {
		return nil, ledger.NewError(ledger.SigningRejected, xerrors.Errorf("declined: %v", err))
	}

	sig, err := w.signer.Sign(append(append([]byte{}, txPrefix...), msgpack.Encode(tx)...))
	if err != nil {
		return nil, ledger.NewError(ledger.SigningRejected,
			xerrors.Errorf("failed to sign: %v", err))
	}

	stx := types.SignedTxn{Txn: tx}
	copy(stx.Sig[:], sig)

	return msgpack.Encode(stx), nil
}

// Verify returns nil if the signature of the signed transaction is valid for
// the account that authorizes it.
func Verify(stx types.SignedTxn) error {
	signer := stx.Txn.Sender
	if stx.AuthAddr != (types.Address{}) {
		signer = stx.AuthAddr
	}

	point := suite.Point()

	err := point.UnmarshalBinary(signer[:])
	if err != nil {
		return xerrors.Errorf("invalid public key: %v", err)
	}

	msg := append(append([]byte{}, txPrefix...), msgpack.Encode(stx.Txn)...)

	err = eddsa.Verify(point, msg, stx.Sig[:])
	if err != nil {
		return xerrors.Errorf("invalid signature: %v", err)
	}

	return nil
}

// keyGenerator creates a new EdDSA key.
//
// - implements wallet.Generator
type keyGenerator struct{}

// Generate implements wallet.Generator.
func (keyGenerator) Generate() ([]byte, error) {
	signer := eddsa.NewEdDSA(suite.RandomStream())

	data, err := signer.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal key: %v", err)
	}

	return data, nil
}
