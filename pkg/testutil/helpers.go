// Package testutil provides shared fixtures for authorization tests: a
// canonical signing domain, throwaway signers, funded in-memory stores, and
// a fully wired in-process node.
package testutil

import (
	"crypto/ecdsa"
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/authrail/authrail-go/pkg/eip712"
	"github.com/authrail/authrail-go/pkg/ledger"
	"github.com/authrail/authrail-go/pkg/persistence"
	"github.com/authrail/authrail-go/pkg/persistence/memory"
	"github.com/authrail/authrail-go/pkg/signature"
	"github.com/authrail/authrail-go/pkg/types"
)

// Domain returns the signing domain shared by the test suites.
func Domain() *eip712.Domain {
	return eip712.NewDomain(
		"AuthRail Token",
		"1",
		big.NewInt(8453),
		common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
	)
}

// NewStore creates an in-memory store that closes when the test ends.
func NewStore(t *testing.T) *memory.MemoryStore {
	t.Helper()
	store := memory.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Signer is a throwaway keypair for signing test authorizations.
type Signer struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NewSigner generates a fresh signer.
func NewSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return &Signer{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// SignTransfer signs auth's transferWithAuthorization digest under domain.
func (s *Signer) SignTransfer(t *testing.T, domain *eip712.Domain, auth *types.Authorization) []byte {
	t.Helper()
	return s.signDigest(t, domain.TransferDigest(auth))
}

// SignReceive signs auth's receiveWithAuthorization digest under domain.
// Both the payer's authorizing signature and the payee's presence proof are
// made over this digest.
func (s *Signer) SignReceive(t *testing.T, domain *eip712.Domain, auth *types.Authorization) []byte {
	t.Helper()
	return s.signDigest(t, domain.ReceiveDigest(auth))
}

// SignCancel signs cancel's cancelAuthorization digest under domain.
func (s *Signer) SignCancel(t *testing.T, domain *eip712.Domain, cancel *types.Cancellation) []byte {
	t.Helper()
	return s.signDigest(t, domain.CancelDigest(cancel))
}

func (s *Signer) signDigest(t *testing.T, digest common.Hash) []byte {
	t.Helper()
	sig, err := signature.Sign(digest, s.Key)
	if err != nil {
		t.Fatalf("Failed to sign digest: %v", err)
	}
	return sig
}

// OpenAuthorization builds an authorization whose validity window brackets
// the current time by ten minutes on each side, with a fresh nonce.
func OpenAuthorization(t *testing.T, from, to common.Address, value int64) *types.Authorization {
	t.Helper()
	now := time.Now().Unix()
	return &types.Authorization{
		From:        from,
		To:          to,
		Value:       big.NewInt(value),
		ValidAfter:  big.NewInt(now - 600),
		ValidBefore: big.NewInt(now + 600),
		Nonce:       RandomNonce(t),
	}
}

// RandomNonce returns a fresh 32-byte nonce.
func RandomNonce(t *testing.T) common.Hash {
	t.Helper()
	var nonce common.Hash
	if _, err := rand.Read(nonce[:]); err != nil {
		t.Fatalf("Failed to generate nonce: %v", err)
	}
	return nonce
}

// Fund mints amount into account through one atomic unit.
func Fund(t *testing.T, store persistence.IAuthorizationStore, account common.Address, amount int64) {
	t.Helper()
	err := store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return ledger.Mint(txn, account, big.NewInt(amount))
	})
	if err != nil {
		t.Fatalf("Failed to fund account %s: %v", account.Hex(), err)
	}
}
