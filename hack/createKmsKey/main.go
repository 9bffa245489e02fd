package main

// Creates a secp256k1 KMS key for authorization signing, optionally attaches
// an alias, and prints the key id and derived address to feed into
// AUTHRAIL_KMS_KEY_ID and AUTHRAIL_KMS_SIGNER_ADDRESS.

import (
	"context"
	"fmt"
	"os"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/authrail/authrail-go/internal/aws"
	"github.com/authrail/authrail-go/pkg/config"
	"github.com/authrail/authrail-go/pkg/logger"
	"github.com/authrail/authrail-go/pkg/signer/awskms"
)

func main() {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	ctx := context.Background()

	keyName := os.Getenv("KEY_NAME")
	if keyName == "" {
		keyName = "authrail-signer"
	}
	aliasName := os.Getenv("KEY_ALIAS")

	awsCfg, err := aws.LoadConfig(ctx, os.Getenv(config.EnvKMSRegion), os.Getenv(config.EnvKMSProfile))
	if err != nil {
		l.Sugar().Fatalw("Failed to load AWS config", "error", err)
	}

	kmsClient := kms.NewFromConfig(awsCfg)

	created, err := kmsClient.CreateKey(ctx, &kms.CreateKeyInput{
		KeyUsage:    kmstypes.KeyUsageTypeSignVerify,
		KeySpec:     kmstypes.KeySpecEccSecgP256k1, // curve required for recoverable authorization signatures
		Description: awssdk.String(fmt.Sprintf("AuthRail authorization signing key - %s", keyName)),
		Tags: []kmstypes.Tag{
			{
				TagKey:   awssdk.String("Name"),
				TagValue: awssdk.String(keyName),
			},
			{
				TagKey:   awssdk.String("Purpose"),
				TagValue: awssdk.String("signing-key"),
			},
			{
				TagKey:   awssdk.String("Curve"),
				TagValue: awssdk.String("secp256k1"),
			},
			{
				TagKey:   awssdk.String("AuthRail"),
				TagValue: awssdk.String("true"),
			},
		},
	})
	if err != nil {
		l.Sugar().Fatalw("Failed to create KMS key", "error", err)
	}
	keyID := awssdk.ToString(created.KeyMetadata.KeyId)

	if aliasName != "" {
		_, err := kmsClient.CreateAlias(ctx, &kms.CreateAliasInput{
			AliasName:   awssdk.String(fmt.Sprintf("alias/%s", aliasName)),
			TargetKeyId: awssdk.String(keyID),
		})
		if err != nil {
			l.Sugar().Fatalw("Failed to create key alias", "keyId", keyID, "error", err)
		}
		l.Sugar().Infow("Created alias", "alias", fmt.Sprintf("alias/%s", aliasName))
	}

	pubOut, err := kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: awssdk.String(keyID)})
	if err != nil {
		l.Sugar().Fatalw("Failed to get public key", "keyId", keyID, "error", err)
	}
	publicKey, err := awskms.ParseECDSAPublicKey(pubOut.PublicKey)
	if err != nil {
		l.Sugar().Fatalw("Failed to parse public key", "keyId", keyID, "error", err)
	}

	l.Sugar().Infow("Created KMS signing key",
		"keyId", keyID,
		"address", crypto.PubkeyToAddress(*publicKey).Hex(),
	)
}
