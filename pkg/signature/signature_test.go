package signature

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authrail/authrail-go/pkg/eip712"
)

func TestSignAndRecoverRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	expected := crypto.PubkeyToAddress(key.PublicKey)

	digest := eip712.Keccak256([]byte("authorization digest"))

	sig, err := Sign(digest, key)
	require.NoError(t, err)
	require.Len(t, sig, Length)
	assert.Contains(t, []byte{27, 28}, sig[64])

	recovered, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, expected, recovered)
}

func TestRecoverAcceptsBothRecoveryForms(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	expected := crypto.PubkeyToAddress(key.PublicKey)

	digest := eip712.Keccak256([]byte("either v form"))
	sig, err := Sign(digest, key)
	require.NoError(t, err)

	// 27/28 form straight from Sign.
	fromWire, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, expected, fromWire)

	// 0/1 form as emitted at the curve level.
	raw := make([]byte, Length)
	copy(raw, sig)
	raw[64] -= 27
	fromRaw, err := RecoverSigner(digest, raw)
	require.NoError(t, err)
	assert.Equal(t, expected, fromRaw)
}

func TestRecoverDoesNotMutateInput(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	digest := eip712.Keccak256([]byte("input untouched"))
	sig, err := Sign(digest, key)
	require.NoError(t, err)

	before := make([]byte, Length)
	copy(before, sig)

	_, err = RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, before, sig)
}

func TestRecoverRejectsMalformedSignatures(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := eip712.Keccak256([]byte("malformed"))
	sig, err := Sign(digest, key)
	require.NoError(t, err)

	t.Run("wrong length", func(t *testing.T) {
		_, err := RecoverSigner(digest, sig[:64])
		assert.ErrorIs(t, err, ErrInvalidLength)

		_, err = RecoverSigner(digest, append(append([]byte{}, sig...), 0x00))
		assert.ErrorIs(t, err, ErrInvalidLength)
	})

	t.Run("recovery id out of range", func(t *testing.T) {
		bad := make([]byte, Length)
		copy(bad, sig)
		bad[64] = 29
		_, err := RecoverSigner(digest, bad)
		assert.ErrorIs(t, err, ErrInvalidRecovery)

		bad[64] = 2
		_, err = RecoverSigner(digest, bad)
		assert.ErrorIs(t, err, ErrInvalidRecovery)
	})

	t.Run("zero scalars", func(t *testing.T) {
		bad := make([]byte, Length)
		bad[64] = 27
		_, err := RecoverSigner(digest, bad)
		assert.ErrorIs(t, err, ErrNonCanonical)
	})
}

func TestRecoverRejectsMalleatedSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	digest := eip712.Keccak256([]byte("no malleability"))
	sig, err := Sign(digest, key)
	require.NoError(t, err)

	// Flip s to its high complement (curve order minus s) and the recovery
	// bit with it. The pair still satisfies the curve equation but is no
	// longer canonical.
	n := crypto.S256().Params().N
	s := new(big.Int).SetBytes(sig[32:64])
	highS := new(big.Int).Sub(n, s)

	malleated := make([]byte, Length)
	copy(malleated, sig[:32])
	highS.FillBytes(malleated[32:64])
	if sig[64] == 27 {
		malleated[64] = 28
	} else {
		malleated[64] = 27
	}

	_, err = RecoverSigner(digest, malleated)
	assert.ErrorIs(t, err, ErrNonCanonical)
}

func TestTamperedDigestRecoversDifferentSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	expected := crypto.PubkeyToAddress(key.PublicKey)

	digest := eip712.Keccak256([]byte("original"))
	sig, err := Sign(digest, key)
	require.NoError(t, err)

	other := eip712.Keccak256([]byte("tampered"))
	recovered, err := RecoverSigner(other, sig)
	if err == nil {
		assert.NotEqual(t, expected, recovered)
	}
}

func TestSignNilKey(t *testing.T) {
	_, err := Sign(eip712.Keccak256([]byte("x")), nil)
	assert.Error(t, err)
}
