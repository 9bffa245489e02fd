package persistence

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
)

// Key prefixes shared by every backend. Keys are lowercase hex without the
// 0x prefix so that the same schema works as badger keys and redis keys.
const (
	NonceKeyPrefix   = "nonce:"
	BalanceKeyPrefix = "balance:"
	SchemaVersionKey = "schema_version"

	// SchemaVersion is written at initialization and read by health checks.
	SchemaVersion = "1"
)

// NonceKey builds the registry key for one (authorizer, nonce) pair.
func NonceKey(authorizer common.Address, nonce common.Hash) string {
	return NonceKeyPrefix + hex.EncodeToString(authorizer[:]) + ":" + hex.EncodeToString(nonce[:])
}

// BalanceKey builds the ledger key for one account.
func BalanceKey(account common.Address) string {
	return BalanceKeyPrefix + hex.EncodeToString(account[:])
}
