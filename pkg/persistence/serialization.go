package persistence

import (
	"fmt"
	"math/big"
)

// UsedFlag is the value stored under a nonce key once the authorization is
// consumed. Presence of the key is what matters; the value is fixed.
var UsedFlag = []byte{0x01}

// EncodeBalance serializes a balance as big-endian bytes. Zero encodes as an
// empty slice.
func EncodeBalance(balance *big.Int) ([]byte, error) {
	if balance == nil {
		return nil, fmt.Errorf("cannot encode nil balance")
	}
	if balance.Sign() < 0 {
		return nil, fmt.Errorf("cannot encode negative balance %s", balance)
	}
	return balance.Bytes(), nil
}

// DecodeBalance deserializes big-endian bytes into a balance. Empty or nil
// input decodes as zero.
func DecodeBalance(data []byte) *big.Int {
	return new(big.Int).SetBytes(data)
}
