package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/authrail/authrail-go/pkg/eip712"
	"github.com/authrail/authrail-go/pkg/logger"
	"github.com/authrail/authrail-go/pkg/signature"
	"github.com/authrail/authrail-go/pkg/types"
)

// Well-known development key. Never fund it.
const devPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// Emits deterministic signed vectors to stdout for checking other
// implementations against this one. Every input is fixed, so the output
// only changes when the hashing or signing rules change.
func main() {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	key, err := crypto.HexToECDSA(devPrivateKeyHex)
	if err != nil {
		l.Sugar().Fatalw("failed to parse dev key", "error", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	contract := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	domain := eip712.NewDomain("AuthRail Token", "1", big.NewInt(8453), contract)

	auth := &types.Authorization{
		From:        from,
		To:          common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Value:       big.NewInt(1000000),
		ValidAfter:  big.NewInt(0),
		ValidBefore: big.NewInt(2000000000),
		Nonce:       common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000001"),
	}
	cancellation := &types.Cancellation{Authorizer: from, Nonce: auth.Nonce}

	transferSig := mustSign(l, domain.TransferDigest(auth), key)
	receiveSig := mustSign(l, domain.ReceiveDigest(auth), key)
	cancelSig := mustSign(l, domain.CancelDigest(cancellation), key)

	vectors := map[string]any{
		"signer": from.Hex(),
		"domain": map[string]string{
			"name":               "AuthRail Token",
			"version":            "1",
			"chain_id":           "8453",
			"verifying_contract": contract.Hex(),
			"separator":          domain.Separator().Hex(),
		},
		"type_hashes": map[string]string{
			"transfer": eip712.TransferTypeHash.Hex(),
			"receive":  eip712.ReceiveTypeHash.Hex(),
			"cancel":   eip712.CancelTypeHash.Hex(),
		},
		"authorization":      types.NewTransferRequest(auth, transferSig),
		"transfer_digest":    domain.TransferDigest(auth).Hex(),
		"receive_digest":     domain.ReceiveDigest(auth).Hex(),
		"cancel_digest":      domain.CancelDigest(cancellation).Hex(),
		"transfer_signature": hexutil.Encode(transferSig),
		"receive_signature":  hexutil.Encode(receiveSig),
		"cancel_signature":   hexutil.Encode(cancelSig),
	}

	encoded, err := json.MarshalIndent(vectors, "", "  ")
	if err != nil {
		l.Sugar().Fatalw("failed to encode vectors", "error", err)
	}
	fmt.Println(string(encoded))
}

func mustSign(l *zap.Logger, digest common.Hash, key *ecdsa.PrivateKey) []byte {
	sig, err := signature.Sign(digest, key)
	if err != nil {
		l.Sugar().Fatalw("failed to sign digest", "error", err)
	}
	return sig
}
