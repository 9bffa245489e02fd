// Package awskms signs authorization digests with a secp256k1 key held in
// AWS KMS. KMS returns DER-encoded (r, s) pairs with no recovery id, so
// signatures are canonicalized to low-S and the recovery id is found by
// trying each candidate against the key's known public half.
package awskms

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/authrail/authrail-go/pkg/config"
	"github.com/authrail/authrail-go/pkg/signer"
)

// Signer implements signer.Signer against a KMS-held key. The public half
// is fetched once at construction; signing needs one KMS call.
type Signer struct {
	keyID     string
	address   common.Address
	publicKey *cryptoEcdsa.PublicKey
	kmsClient *kms.Client
	logger    *zap.Logger
}

var _ signer.Signer = (*Signer)(nil)

// NewSigner connects to KMS, loads the key's public half, and verifies it
// derives the configured signer address.
func NewSigner(ctx context.Context, awsCfg aws.Config, cfg *config.KMSSignerConfig, logger *zap.Logger) (*Signer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	kmsClient := kms.NewFromConfig(awsCfg)

	pubOut, err := kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(cfg.KeyID)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s", cfg.KeyID)
	}

	publicKey, err := ParseECDSAPublicKey(pubOut.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for key %s", cfg.KeyID)
	}

	address := crypto.PubkeyToAddress(*publicKey)
	if expected := common.HexToAddress(cfg.SignerAddress); address != expected {
		return nil, fmt.Errorf("key %s derives address %s, config expects %s", cfg.KeyID, address.Hex(), expected.Hex())
	}

	logger.Sugar().Infow("KMS signer ready",
		"key_id", cfg.KeyID,
		"address", address.Hex(),
	)

	return &Signer{
		keyID:     cfg.KeyID,
		address:   address,
		publicKey: publicKey,
		kmsClient: kmsClient,
		logger:    logger,
	}, nil
}

// Address returns the address derived from the KMS key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignDigest signs a 32-byte digest, returning r||s||v with v in {27, 28}.
func (s *Signer) SignDigest(ctx context.Context, digest common.Hash) ([]byte, error) {
	signOutput, err := s.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          digest[:],
		SigningAlgorithm: kmstypes.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      kmstypes.MessageTypeDigest,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "KMS sign failed for key %s", s.keyID)
	}

	sig, err := ethSignatureFromDER(digest, signOutput.Signature, s.publicKey, s.logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to convert KMS signature for key %s", s.keyID)
	}
	return sig, nil
}

// ASN.1 shapes of KMS signature and public key output
type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

// ParseECDSAPublicKey parses the DER-encoded public key returned by KMS.
func ParseECDSAPublicKey(derBytes []byte) (*cryptoEcdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	if _, err := asn1.Unmarshal(derBytes, &asn1pubk); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}

	return crypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

// ethSignatureFromDER converts a DER-encoded (r, s) signature over digest
// into 65-byte r||s||v form. High-S values are flipped to their canonical
// low-S counterpart, then each recovery id is tried until one reproduces
// the expected public key.
func ethSignatureFromDER(digest common.Hash, derSig []byte, expected *cryptoEcdsa.PublicKey, logger *zap.Logger) ([]byte, error) {
	var sigAsn1 asn1EcSig
	if _, err := asn1.Unmarshal(derSig, &sigAsn1); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 signature: %w", err)
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	sigS := new(big.Int).SetBytes(sigAsn1.S.Bytes)

	curveOrder := crypto.S256().Params().N
	halfOrder := new(big.Int).Rsh(curveOrder, 1)
	if sigS.Cmp(halfOrder) > 0 {
		sigS = new(big.Int).Sub(curveOrder, sigS)
	}

	rBytes := r.FillBytes(make([]byte, 32))
	sBytes := sigS.FillBytes(make([]byte, 32))

	for recoveryID := 0; recoveryID < 4; recoveryID++ {
		candidate := make([]byte, 65)
		copy(candidate[0:32], rBytes)
		copy(candidate[32:64], sBytes)
		candidate[64] = byte(recoveryID)

		recoveredBytes, err := crypto.Ecrecover(digest[:], candidate)
		if err != nil {
			logger.Debug("Ecrecover failed",
				zap.Int("recoveryId", recoveryID),
				zap.Error(err))
			continue
		}

		recovered, err := crypto.UnmarshalPubkey(recoveredBytes)
		if err != nil {
			logger.Debug("Failed to unmarshal recovered public key",
				zap.Int("recoveryId", recoveryID),
				zap.Error(err))
			continue
		}

		if recovered.X.Cmp(expected.X) == 0 && recovered.Y.Cmp(expected.Y) == 0 {
			candidate[64] = byte(27 + recoveryID)
			return candidate, nil
		}
	}

	return nil, fmt.Errorf("no recovery id reproduces the expected public key")
}
