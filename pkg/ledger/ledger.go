// Package ledger implements balance bookkeeping for authorized transfers.
// The ledger owns no state of its own: balances live in the authorization
// store, and every mutation runs inside a store transaction so a failed
// operation leaves no trace.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/authrail/authrail-go/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientBalance is returned when the payer cannot cover the
	// transfer value. The ledger never creates value to make up a shortfall.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNegativeValue is returned when a transfer or mint value is nil or
	// below zero.
	ErrNegativeValue = errors.New("negative value")
)

// Transfer moves value between two accounts inside txn. The debit and credit
// land in the same atomic unit, so either both commit or neither does.
// Zero-value transfers are valid. Self-transfers still require sufficient
// funds and leave the net balance unchanged.
func Transfer(txn persistence.AuthorizationTxn, from, to common.Address, value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return fmt.Errorf("transfer of %s from %s: %w", value, from.Hex(), ErrNegativeValue)
	}

	fromBalance, err := txn.Balance(from)
	if err != nil {
		return fmt.Errorf("failed to read balance of %s: %w", from.Hex(), err)
	}

	if fromBalance.Cmp(value) < 0 {
		return fmt.Errorf("account %s holds %s, needs %s: %w", from.Hex(), fromBalance, value, ErrInsufficientBalance)
	}

	if err := txn.SetBalance(from, new(big.Int).Sub(fromBalance, value)); err != nil {
		return fmt.Errorf("failed to debit %s: %w", from.Hex(), err)
	}

	// Re-read through the staged writes so from == to nets out to zero.
	toBalance, err := txn.Balance(to)
	if err != nil {
		return fmt.Errorf("failed to read balance of %s: %w", to.Hex(), err)
	}

	if err := txn.SetBalance(to, new(big.Int).Add(toBalance, value)); err != nil {
		return fmt.Errorf("failed to credit %s: %w", to.Hex(), err)
	}

	return nil
}

// Mint credits freshly created units to an account. Operational tooling
// only; engine operations never mint.
func Mint(txn persistence.AuthorizationTxn, account common.Address, value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return fmt.Errorf("mint of %s to %s: %w", value, account.Hex(), ErrNegativeValue)
	}

	balance, err := txn.Balance(account)
	if err != nil {
		return fmt.Errorf("failed to read balance of %s: %w", account.Hex(), err)
	}

	if err := txn.SetBalance(account, new(big.Int).Add(balance, value)); err != nil {
		return fmt.Errorf("failed to credit %s: %w", account.Hex(), err)
	}

	return nil
}

// Balance reads an account balance inside txn. Accounts never funded hold
// zero.
func Balance(txn persistence.AuthorizationTxn, account common.Address) (*big.Int, error) {
	return txn.Balance(account)
}
