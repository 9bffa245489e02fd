package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Authorization carries the signed fields of a transfer-style authorization.
// It exists only as call arguments next to its signature; it is never stored.
type Authorization struct {
	From        common.Address // signer whose balance is debited
	To          common.Address // recipient (transfer) or required caller (receive)
	Value       *big.Int       // amount in the ledger's smallest unit
	ValidAfter  *big.Int       // inclusive lower bound, UNIX seconds
	ValidBefore *big.Int       // exclusive upper bound, UNIX seconds
	Nonce       common.Hash    // caller-chosen, unique per signer
}

// Cancellation carries the signed fields of a cancel-authorization message.
// Only the authorizer and the nonce are signed; cancels have no value or
// time bounds.
type Cancellation struct {
	Authorizer common.Address
	Nonce      common.Hash
}

// EventKind discriminates the notifications emitted after a committed
// operation.
type EventKind string

const (
	EventAuthorizationUsed     EventKind = "authorization_used"
	EventTransfer              EventKind = "transfer"
	EventAuthorizationCanceled EventKind = "authorization_canceled"
)

// Event is a post-commit notification. Authorizer and Nonce are set for
// used/canceled events, From/To/Value for transfer events.
type Event struct {
	Kind       EventKind
	Authorizer common.Address
	Nonce      common.Hash
	From       common.Address
	To         common.Address
	Value      *big.Int
}

// NewAuthorizationUsedEvent builds the notification emitted when a nonce is
// consumed by a transfer or receive operation.
func NewAuthorizationUsedEvent(authorizer common.Address, nonce common.Hash) Event {
	return Event{Kind: EventAuthorizationUsed, Authorizer: authorizer, Nonce: nonce}
}

// NewTransferEvent builds the notification emitted after a committed balance
// movement.
func NewTransferEvent(from, to common.Address, value *big.Int) Event {
	return Event{Kind: EventTransfer, From: from, To: to, Value: new(big.Int).Set(value)}
}

// NewAuthorizationCanceledEvent builds the notification emitted when an
// unused authorization is canceled.
func NewAuthorizationCanceledEvent(authorizer common.Address, nonce common.Hash) Event {
	return Event{Kind: EventAuthorizationCanceled, Authorizer: authorizer, Nonce: nonce}
}
