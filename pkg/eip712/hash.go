package eip712

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Canonical type signature strings. Field order is part of the protocol:
// signer and verifier must encode fields in exactly this declaration order
// or the digests diverge.
const (
	TransferWithAuthorizationType = "TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"
	ReceiveWithAuthorizationType  = "ReceiveWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"
	CancelAuthorizationType       = "CancelAuthorization(address authorizer,bytes32 nonce)"

	domainType = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
)

// Type hashes distinguish the three authorization shapes. A signature
// produced under one type hash can never verify against a digest built with
// another: the recovered address simply will not match.
var (
	TransferTypeHash = Keccak256([]byte(TransferWithAuthorizationType))
	ReceiveTypeHash  = Keccak256([]byte(ReceiveWithAuthorizationType))
	CancelTypeHash   = Keccak256([]byte(CancelAuthorizationType))

	domainTypeHash = Keccak256([]byte(domainType))
)

// Keccak256 hashes the concatenation of parts with legacy Keccak-256.
func Keccak256(parts ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// AuthorizationStructHash computes the struct hash for the six-field
// transfer/receive shape: keccak256(typeHash || from || to || value ||
// validAfter || validBefore || nonce), every field one 32-byte slot.
func AuthorizationStructHash(typeHash common.Hash, from, to common.Address, value, validAfter, validBefore *big.Int, nonce common.Hash) common.Hash {
	return Keccak256(
		typeHash[:],
		padAddress(from),
		padAddress(to),
		padUint256(value),
		padUint256(validAfter),
		padUint256(validBefore),
		nonce[:],
	)
}

// CancellationStructHash computes the struct hash for the two-field cancel
// shape: keccak256(typeHash || authorizer || nonce).
func CancellationStructHash(typeHash common.Hash, authorizer common.Address, nonce common.Hash) common.Hash {
	return Keccak256(
		typeHash[:],
		padAddress(authorizer),
		nonce[:],
	)
}

// padUint256 right-aligns an unsigned integer into a 32-byte slot. A nil
// value encodes as zero.
func padUint256(v *big.Int) []byte {
	out := make([]byte, 32)
	if v == nil {
		return out
	}
	b := v.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}

// padAddress left-pads a 20-byte address into a 32-byte slot.
func padAddress(a common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], a[:])
	return out
}
