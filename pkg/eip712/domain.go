// Package eip712 implements the typed-message hashing scheme that binds
// authorization signatures to one token domain: a domain separator over
// (name, version, chainId, verifyingContract), canonical struct hashes per
// authorization type, and the final 0x19 0x01 signing digest. All functions
// are pure; the rest of the system treats them as the single source of
// digest truth.
package eip712

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authrail/authrail-go/pkg/types"
)

// Domain is the immutable signing domain. The separator is fixed at
// construction; identical messages signed under domains differing in any
// field produce different digests and never cross-verify.
type Domain struct {
	name              string
	version           string
	chainID           *big.Int
	verifyingContract common.Address
	separator         common.Hash
}

// NewDomain binds a signing domain and precomputes its separator:
// keccak256(domainTypeHash || keccak256(name) || keccak256(version) ||
// chainId || verifyingContract).
func NewDomain(name, version string, chainID *big.Int, verifyingContract common.Address) *Domain {
	id := new(big.Int)
	if chainID != nil {
		id.Set(chainID)
	}
	nameHash := Keccak256([]byte(name))
	versionHash := Keccak256([]byte(version))
	separator := Keccak256(
		domainTypeHash[:],
		nameHash[:],
		versionHash[:],
		padUint256(id),
		padAddress(verifyingContract),
	)
	return &Domain{
		name:              name,
		version:           version,
		chainID:           id,
		verifyingContract: verifyingContract,
		separator:         separator,
	}
}

// Name returns the domain name.
func (d *Domain) Name() string { return d.name }

// Version returns the domain version.
func (d *Domain) Version() string { return d.version }

// ChainID returns a copy of the chain identifier.
func (d *Domain) ChainID() *big.Int { return new(big.Int).Set(d.chainID) }

// VerifyingContract returns the bound contract/instance identifier.
func (d *Domain) VerifyingContract() common.Address { return d.verifyingContract }

// Separator returns the precomputed domain separator.
func (d *Domain) Separator() common.Hash { return d.separator }

// Digest combines the domain separator with a struct hash into the final
// signing digest: keccak256(0x19 || 0x01 || separator || structHash). The
// two-byte prefix separates this scheme from other signed payloads and must
// be reproduced exactly.
func (d *Domain) Digest(structHash common.Hash) common.Hash {
	return Keccak256([]byte{0x19, 0x01}, d.separator[:], structHash[:])
}

// TransferDigest builds the signing digest for a transfer authorization.
func (d *Domain) TransferDigest(auth *types.Authorization) common.Hash {
	return d.Digest(AuthorizationStructHash(
		TransferTypeHash, auth.From, auth.To, auth.Value, auth.ValidAfter, auth.ValidBefore, auth.Nonce,
	))
}

// ReceiveDigest builds the signing digest for a receive authorization.
func (d *Domain) ReceiveDigest(auth *types.Authorization) common.Hash {
	return d.Digest(AuthorizationStructHash(
		ReceiveTypeHash, auth.From, auth.To, auth.Value, auth.ValidAfter, auth.ValidBefore, auth.Nonce,
	))
}

// CancelDigest builds the signing digest for a cancellation.
func (d *Domain) CancelDigest(cancel *types.Cancellation) common.Hash {
	return d.Digest(CancellationStructHash(CancelTypeHash, cancel.Authorizer, cancel.Nonce))
}
