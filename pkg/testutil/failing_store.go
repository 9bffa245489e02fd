package testutil

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authrail/authrail-go/pkg/persistence"
)

// FailingStore implements persistence.IAuthorizationStore for testing.
// It delegates to a real store until a failure is injected, letting tests
// exercise storage-failure paths without breaking a backend for real.
type FailingStore struct {
	inner persistence.IAuthorizationStore

	mu        sync.Mutex
	readErr   error
	atomicErr error
	healthErr error
}

// NewFailingStore wraps inner with failure injection. With no failures
// injected it behaves exactly like inner.
func NewFailingStore(inner persistence.IAuthorizationStore) *FailingStore {
	return &FailingStore{inner: inner}
}

// FailReads makes AuthorizationUsed and Balance return err until Recover.
func (f *FailingStore) FailReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

// FailAtomically makes Atomically return err without running fn until
// Recover.
func (f *FailingStore) FailAtomically(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.atomicErr = err
}

// FailHealth makes HealthCheck return err until Recover.
func (f *FailingStore) FailHealth(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthErr = err
}

// Recover clears every injected failure.
func (f *FailingStore) Recover() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = nil
	f.atomicErr = nil
	f.healthErr = nil
}

func (f *FailingStore) AuthorizationUsed(authorizer common.Address, nonce common.Hash) (bool, error) {
	f.mu.Lock()
	err := f.readErr
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.inner.AuthorizationUsed(authorizer, nonce)
}

func (f *FailingStore) Balance(account common.Address) (*big.Int, error) {
	f.mu.Lock()
	err := f.readErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.inner.Balance(account)
}

func (f *FailingStore) Atomically(fn func(txn persistence.AuthorizationTxn) error) error {
	f.mu.Lock()
	err := f.atomicErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.inner.Atomically(fn)
}

func (f *FailingStore) Close() error {
	return f.inner.Close()
}

func (f *FailingStore) HealthCheck() error {
	f.mu.Lock()
	err := f.healthErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.inner.HealthCheck()
}
