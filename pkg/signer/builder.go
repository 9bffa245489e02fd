package signer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authrail/authrail-go/pkg/eip712"
	"github.com/authrail/authrail-go/pkg/types"
)

// clockDrift backdates validAfter so an authorization signed on a slightly
// fast clock is not rejected as not-yet-valid.
const clockDrift = 10 * time.Second

// Builder signs authorizations against one domain. Signatures only bind to
// the domain they were built for; a node with different domain fields will
// reject them.
type Builder struct {
	domain *eip712.Domain
	signer Signer
}

// NewBuilder creates a builder.
func NewBuilder(domain *eip712.Domain, s Signer) (*Builder, error) {
	if domain == nil {
		return nil, fmt.Errorf("domain is required")
	}
	if s == nil {
		return nil, fmt.Errorf("signer is required")
	}
	return &Builder{domain: domain, signer: s}, nil
}

// Address returns the underlying signer's address.
func (b *Builder) Address() common.Address {
	return b.signer.Address()
}

// NewAuthorization assembles an unsigned authorization from this signer to
// the payee with a random nonce, valid from roughly now until now+ttl.
func (b *Builder) NewAuthorization(to common.Address, value *big.Int, ttl time.Duration) (*types.Authorization, error) {
	nonce, err := RandomNonce()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &types.Authorization{
		From:        b.signer.Address(),
		To:          to,
		Value:       new(big.Int).Set(value),
		ValidAfter:  big.NewInt(now.Add(-clockDrift).Unix()),
		ValidBefore: big.NewInt(now.Add(ttl).Unix()),
		Nonce:       nonce,
	}, nil
}

// SignTransfer signs auth for submission by anyone.
func (b *Builder) SignTransfer(ctx context.Context, auth *types.Authorization) ([]byte, error) {
	sig, err := b.signer.SignDigest(ctx, b.domain.TransferDigest(auth))
	if err != nil {
		return nil, fmt.Errorf("failed to sign transfer authorization: %w", err)
	}
	return sig, nil
}

// SignReceive signs auth as the payer. The payee counter-signs the same
// digest to prove its identity when submitting.
func (b *Builder) SignReceive(ctx context.Context, auth *types.Authorization) ([]byte, error) {
	sig, err := b.signer.SignDigest(ctx, b.domain.ReceiveDigest(auth))
	if err != nil {
		return nil, fmt.Errorf("failed to sign receive authorization: %w", err)
	}
	return sig, nil
}

// SignReceiveCaller produces the submitting caller's identity proof over
// the receive digest. The node only accepts it from the payee.
func (b *Builder) SignReceiveCaller(ctx context.Context, auth *types.Authorization) ([]byte, error) {
	sig, err := b.signer.SignDigest(ctx, b.domain.ReceiveDigest(auth))
	if err != nil {
		return nil, fmt.Errorf("failed to sign caller proof: %w", err)
	}
	return sig, nil
}

// SignCancel burns one of this signer's nonces. Returns the cancellation it
// signed alongside the signature.
func (b *Builder) SignCancel(ctx context.Context, nonce common.Hash) (*types.Cancellation, []byte, error) {
	cancel := &types.Cancellation{Authorizer: b.signer.Address(), Nonce: nonce}
	sig, err := b.signer.SignDigest(ctx, b.domain.CancelDigest(cancel))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign cancellation: %w", err)
	}
	return cancel, sig, nil
}

// TransferRequest signs auth and renders the wire message.
func (b *Builder) TransferRequest(ctx context.Context, auth *types.Authorization) (*types.TransferRequest, error) {
	sig, err := b.SignTransfer(ctx, auth)
	if err != nil {
		return nil, err
	}
	return types.NewTransferRequest(auth, sig), nil
}

// ReceiveRequest counter-signs a payer-signed receive authorization and
// renders the wire message. The builder's signer acts as the submitting
// caller.
func (b *Builder) ReceiveRequest(ctx context.Context, auth *types.Authorization, payerSig []byte) (*types.ReceiveRequest, error) {
	callerSig, err := b.SignReceiveCaller(ctx, auth)
	if err != nil {
		return nil, err
	}
	return types.NewReceiveRequest(auth, payerSig, callerSig), nil
}

// CancelRequest signs a cancellation and renders the wire message.
func (b *Builder) CancelRequest(ctx context.Context, nonce common.Hash) (*types.CancelRequest, error) {
	cancel, sig, err := b.SignCancel(ctx, nonce)
	if err != nil {
		return nil, err
	}
	return types.NewCancelRequest(cancel, sig), nil
}
