package ledger

import (
	"math/big"
	"testing"

	"github.com/authrail/authrail-go/pkg/persistence"
	"github.com/authrail/authrail-go/pkg/persistence/memory"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

// fund seeds an account through a committed mint.
func fund(t *testing.T, store persistence.IAuthorizationStore, account common.Address, value int64) {
	t.Helper()

	err := store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return Mint(txn, account, big.NewInt(value))
	})
	require.NoError(t, err)
}

func balanceOf(t *testing.T, store persistence.IAuthorizationStore, account common.Address) int64 {
	t.Helper()

	balance, err := store.Balance(account)
	require.NoError(t, err)
	return balance.Int64()
}

func TestTransfer_MovesValue(t *testing.T) {
	store := memory.NewMemoryStore()
	defer func() { _ = store.Close() }()

	fund(t, store, alice, 10000000)

	err := store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return Transfer(txn, alice, bob, big.NewInt(7000000))
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3000000), balanceOf(t, store, alice))
	assert.Equal(t, int64(7000000), balanceOf(t, store, bob))
}

func TestTransfer_ExactBalance(t *testing.T) {
	store := memory.NewMemoryStore()
	defer func() { _ = store.Close() }()

	fund(t, store, alice, 500)

	err := store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return Transfer(txn, alice, bob, big.NewInt(500))
	})
	require.NoError(t, err)

	assert.Zero(t, balanceOf(t, store, alice))
	assert.Equal(t, int64(500), balanceOf(t, store, bob))
}

func TestTransfer_ZeroValue(t *testing.T) {
	store := memory.NewMemoryStore()
	defer func() { _ = store.Close() }()

	// Zero-value transfers succeed even from an unfunded account
	err := store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return Transfer(txn, alice, bob, big.NewInt(0))
	})
	require.NoError(t, err)

	assert.Zero(t, balanceOf(t, store, alice))
	assert.Zero(t, balanceOf(t, store, bob))
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	store := memory.NewMemoryStore()
	defer func() { _ = store.Close() }()

	fund(t, store, alice, 100)

	err := store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return Transfer(txn, alice, bob, big.NewInt(101))
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// The aborted unit left both balances untouched
	assert.Equal(t, int64(100), balanceOf(t, store, alice))
	assert.Zero(t, balanceOf(t, store, bob))
}

func TestTransfer_NegativeAndNilValue(t *testing.T) {
	store := memory.NewMemoryStore()
	defer func() { _ = store.Close() }()

	fund(t, store, alice, 100)

	err := store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return Transfer(txn, alice, bob, big.NewInt(-1))
	})
	require.ErrorIs(t, err, ErrNegativeValue)

	err = store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return Transfer(txn, alice, bob, nil)
	})
	require.ErrorIs(t, err, ErrNegativeValue)
}

func TestTransfer_SelfTransfer(t *testing.T) {
	store := memory.NewMemoryStore()
	defer func() { _ = store.Close() }()

	fund(t, store, alice, 1000)

	// Nets out to zero but still requires funds
	err := store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return Transfer(txn, alice, alice, big.NewInt(400))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balanceOf(t, store, alice))

	err = store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return Transfer(txn, alice, alice, big.NewInt(1001))
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(1000), balanceOf(t, store, alice))
}

func TestTransfer_ConservesTotalSupply(t *testing.T) {
	store := memory.NewMemoryStore()
	defer func() { _ = store.Close() }()

	carol := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	fund(t, store, alice, 600)
	fund(t, store, bob, 300)
	fund(t, store, carol, 100)

	moves := []struct {
		from, to common.Address
		value    int64
	}{
		{alice, bob, 250},
		{bob, carol, 500},
		{carol, alice, 599},
		{alice, alice, 100},
		{bob, alice, 51}, // fails: bob holds 50
	}

	for _, m := range moves {
		_ = store.Atomically(func(txn persistence.AuthorizationTxn) error {
			return Transfer(txn, m.from, m.to, big.NewInt(m.value))
		})
	}

	total := balanceOf(t, store, alice) + balanceOf(t, store, bob) + balanceOf(t, store, carol)
	assert.Equal(t, int64(1000), total)
}

func TestMint_Accumulates(t *testing.T) {
	store := memory.NewMemoryStore()
	defer func() { _ = store.Close() }()

	fund(t, store, alice, 100)
	fund(t, store, alice, 250)

	assert.Equal(t, int64(350), balanceOf(t, store, alice))
}

func TestMint_NegativeValue(t *testing.T) {
	store := memory.NewMemoryStore()
	defer func() { _ = store.Close() }()

	err := store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return Mint(txn, alice, big.NewInt(-10))
	})
	require.ErrorIs(t, err, ErrNegativeValue)
}

func TestBalance_DefaultsToZero(t *testing.T) {
	store := memory.NewMemoryStore()
	defer func() { _ = store.Close() }()

	err := store.Atomically(func(txn persistence.AuthorizationTxn) error {
		balance, err := Balance(txn, alice)
		require.NoError(t, err)
		require.Zero(t, balance.Sign())
		return nil
	})
	require.NoError(t, err)
}
