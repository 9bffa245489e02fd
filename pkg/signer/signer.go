// Package signer creates and signs transfer authorizations. A LocalSigner
// holds its key in process, sourced from raw hex, an encrypted keystore
// file, or a BIP-39 mnemonic; the awskms subpackage keeps the key in AWS
// KMS. Builder pairs a Signer with a signing domain and produces
// authorization signatures and wire requests.
package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/authrail/authrail-go/pkg/signature"
)

// Signer produces 65-byte authorization signatures for one address.
type Signer interface {
	Address() common.Address
	SignDigest(ctx context.Context, digest common.Hash) ([]byte, error)
}

// LocalSigner signs with an in-process secp256k1 key.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// Option configures a LocalSigner.
type Option func(*LocalSigner) error

// NewLocalSigner creates a local signer. Exactly one key source option is
// required; when several are given the last one wins.
func NewLocalSigner(opts ...Option) (*LocalSigner, error) {
	s := &LocalSigner{}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, ErrNoKey
	}

	s.address = crypto.PubkeyToAddress(s.privateKey.PublicKey)
	return s, nil
}

// WithPrivateKey sets the key from a hex string, with or without the 0x
// prefix.
func WithPrivateKey(hexKey string) Option {
	return func(s *LocalSigner) error {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		s.privateKey = privateKey
		return nil
	}
}

// WithGeneratedKey sets a fresh random key. Meant for tests and throwaway
// environments; the key cannot be recovered once the process exits.
func WithGeneratedKey() Option {
	return func(s *LocalSigner) error {
		privateKey, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		s.privateKey = privateKey
		return nil
	}
}

// Address returns the signer's address.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignDigest signs a 32-byte digest, returning r||s||v with v in {27, 28}.
func (s *LocalSigner) SignDigest(_ context.Context, digest common.Hash) ([]byte, error) {
	return signature.Sign(digest, s.privateKey)
}

// RandomNonce returns a cryptographically random 32-byte nonce.
func RandomNonce() (common.Hash, error) {
	var nonce common.Hash
	if _, err := rand.Read(nonce[:]); err != nil {
		return common.Hash{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}
