package persistence

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AuthorizationTxn is the store view inside one atomic unit of work. Writes
// staged through it become visible to other operations only if the
// surrounding Atomically call returns nil; on error every staged write is
// discarded.
type AuthorizationTxn interface {
	// AuthorizationUsed reports whether (authorizer, nonce) has been
	// consumed, including by writes staged earlier in this transaction.
	AuthorizationUsed(authorizer common.Address, nonce common.Hash) (bool, error)

	// MarkAuthorizationUsed stages the Unused -> Used transition for
	// (authorizer, nonce). The transition is monotonic; nothing ever clears
	// it.
	MarkAuthorizationUsed(authorizer common.Address, nonce common.Hash) error

	// Balance returns the account balance visible to this transaction.
	// Accounts never written default to zero.
	Balance(account common.Address) (*big.Int, error)

	// SetBalance stages a balance write. The balance must not be negative.
	SetBalance(account common.Address, balance *big.Int) error
}

// IAuthorizationStore persists the nonce registry and the balance ledger.
// All implementations must be safe for concurrent use.
//
// The interface supports:
// - Replay registry reads (per authorizer and nonce)
// - Balance reads
// - Atomic units combining registry and balance writes
// - Lifecycle management (close, health check)
type IAuthorizationStore interface {
	// AuthorizationUsed reports whether (authorizer, nonce) has been
	// consumed by a committed transfer, receive, or cancellation.
	// Returns error only on storage failure.
	AuthorizationUsed(authorizer common.Address, nonce common.Hash) (bool, error)

	// Balance returns the committed balance for an account.
	// Accounts never written return zero, not an error.
	Balance(account common.Address) (*big.Int, error)

	// Atomically runs fn inside one transaction. Every write staged by fn
	// commits if and only if fn returns nil; any error rolls the whole unit
	// back and is returned to the caller unchanged (wrapped only for
	// storage-level failures).
	Atomically(fn func(txn AuthorizationTxn) error) error

	// Close cleanly shuts down the store.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return errors.
	Close() error

	// HealthCheck verifies the store is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
