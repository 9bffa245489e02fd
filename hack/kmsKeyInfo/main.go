package main

// Prints the AWS identity, key metadata, and derived signing address for a
// KMS key. The printed address is what AUTHRAIL_KMS_SIGNER_ADDRESS must be
// set to before the client will sign with this key.

import (
	"context"
	"os"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/authrail/authrail-go/internal/aws"
	"github.com/authrail/authrail-go/pkg/config"
	"github.com/authrail/authrail-go/pkg/logger"
	"github.com/authrail/authrail-go/pkg/signer/awskms"
)

func main() {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	ctx := context.Background()

	keyID := os.Getenv(config.EnvKMSKeyID)
	if keyID == "" {
		l.Sugar().Fatalf("%s environment variable is not set", config.EnvKMSKeyID)
	}

	awsCfg, err := aws.LoadConfig(ctx, os.Getenv(config.EnvKMSRegion), os.Getenv(config.EnvKMSProfile))
	if err != nil {
		l.Sugar().Fatalw("Failed to load AWS config", "error", err)
	}
	identity, err := aws.GetCallerIdentity(ctx, awsCfg)
	if err != nil {
		l.Sugar().Fatalw("Failed to resolve AWS caller identity", "error", err)
	}
	l.Sugar().Infow("AWS identity",
		"account", awssdk.ToString(identity.Account),
		"arn", awssdk.ToString(identity.Arn),
	)

	kmsClient := kms.NewFromConfig(awsCfg)
	pubOut, err := kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: awssdk.String(keyID)})
	if err != nil {
		l.Sugar().Fatalw("Failed to get public key", "keyId", keyID, "error", err)
	}

	publicKey, err := awskms.ParseECDSAPublicKey(pubOut.PublicKey)
	if err != nil {
		l.Sugar().Fatalw("Failed to parse public key", "keyId", keyID, "error", err)
	}

	l.Sugar().Infow("KMS signing key",
		"keyId", keyID,
		"keySpec", string(pubOut.KeySpec),
		"publicKey", hexutil.Encode(crypto.FromECDSAPub(publicKey)),
		"address", crypto.PubkeyToAddress(*publicKey).Hex(),
	)
}
