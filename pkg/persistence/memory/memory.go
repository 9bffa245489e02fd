package memory

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/authrail/authrail-go/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore is an in-memory implementation of IAuthorizationStore.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Values are re-encoded on every read and write to prevent external mutation.
type MemoryStore struct {
	mu sync.RWMutex

	// Nonce registry: persistence.NonceKey -> consumed
	nonces map[string]bool

	// Balance ledger: persistence.BalanceKey -> big-endian balance bytes
	balances map[string][]byte

	// Closed flag
	closed bool
}

// NewMemoryStore creates a new in-memory authorization store.
// Prints a loud warning since this should only be used for testing.
func NewMemoryStore() *MemoryStore {
	fmt.Println("⚠️  WARNING: Using in-memory store - ALL DATA WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Set AUTHRAIL_STORE=badger for production")

	return &MemoryStore{
		nonces:   make(map[string]bool),
		balances: make(map[string][]byte),
	}
}

// AuthorizationUsed reports whether (authorizer, nonce) has been consumed.
func (m *MemoryStore) AuthorizationUsed(authorizer common.Address, nonce common.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, fmt.Errorf("persistence layer is closed")
	}

	return m.nonces[persistence.NonceKey(authorizer, nonce)], nil
}

// Balance retrieves the committed balance for an account.
func (m *MemoryStore) Balance(account common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	return persistence.DecodeBalance(m.balances[persistence.BalanceKey(account)]), nil
}

// Atomically runs fn against a staging overlay while holding the store lock.
// Staged writes are applied only if fn returns nil.
func (m *MemoryStore) Atomically(fn func(txn persistence.AuthorizationTxn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	txn := &memTxn{
		store:           m,
		pendingNonces:   make(map[string]bool),
		pendingBalances: make(map[string][]byte),
	}

	if err := fn(txn); err != nil {
		return err // Staged writes are discarded
	}

	// Commit staged writes
	for key := range txn.pendingNonces {
		m.nonces[key] = true
	}
	for key, data := range txn.pendingBalances {
		m.balances[key] = data
	}

	return nil
}

// Close shuts down the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the store is operational.
func (m *MemoryStore) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return nil
}

// memTxn stages writes for one atomic unit. The store mutex is held for the
// whole unit, so reads may touch the base maps directly.
type memTxn struct {
	store           *MemoryStore
	pendingNonces   map[string]bool
	pendingBalances map[string][]byte
}

func (t *memTxn) AuthorizationUsed(authorizer common.Address, nonce common.Hash) (bool, error) {
	key := persistence.NonceKey(authorizer, nonce)
	if t.pendingNonces[key] {
		return true, nil
	}
	return t.store.nonces[key], nil
}

func (t *memTxn) MarkAuthorizationUsed(authorizer common.Address, nonce common.Hash) error {
	t.pendingNonces[persistence.NonceKey(authorizer, nonce)] = true
	return nil
}

func (t *memTxn) Balance(account common.Address) (*big.Int, error) {
	key := persistence.BalanceKey(account)
	if data, ok := t.pendingBalances[key]; ok {
		return persistence.DecodeBalance(data), nil
	}
	return persistence.DecodeBalance(t.store.balances[key]), nil
}

func (t *memTxn) SetBalance(account common.Address, balance *big.Int) error {
	data, err := persistence.EncodeBalance(balance)
	if err != nil {
		return err
	}
	t.pendingBalances[persistence.BalanceKey(account)] = data
	return nil
}
