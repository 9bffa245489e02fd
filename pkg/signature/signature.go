// Package signature wraps secp256k1 recovery for authorization digests.
//
// Accepted wire form is the 65-byte r || s || v layout. The recovery byte v
// travels as 27/28 in Ethereum tooling and as 0/1 at the curve level; both
// are accepted and normalized before recovery. Signatures with an
// out-of-range recovery id or a non-canonical (high) s scalar are rejected
// outright, so a malleated copy of a valid signature never verifies.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Length is the size of a wire signature: 32-byte r, 32-byte s, 1-byte v.
const Length = 65

var (
	ErrInvalidLength   = errors.New("signature must be 65 bytes")
	ErrInvalidRecovery = errors.New("signature recovery id out of range")
	ErrNonCanonical    = errors.New("signature scalars not canonical")
	ErrRecoveryFailed  = errors.New("public key recovery failed")
)

// Normalize validates the wire form and returns a copy with v mapped to the
// 0/1 range the recovery primitive expects. The input slice is never
// mutated.
func Normalize(sig []byte) ([]byte, error) {
	if len(sig) != Length {
		return nil, ErrInvalidLength
	}
	out := make([]byte, Length)
	copy(out, sig)

	if out[64] >= 27 {
		out[64] -= 27
	}
	if out[64] > 1 {
		return nil, ErrInvalidRecovery
	}

	r := new(big.Int).SetBytes(out[:32])
	s := new(big.Int).SetBytes(out[32:64])
	if !crypto.ValidateSignatureValues(out[64], r, s, true) {
		return nil, ErrNonCanonical
	}
	return out, nil
}

// RecoverSigner returns the address whose key produced sig over digest.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	normalized, err := Normalize(sig)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign produces a wire signature over digest with v in 27/28 form.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, errors.New("private key is nil")
	}
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}
