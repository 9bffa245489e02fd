// Package aws loads AWS SDK configuration for the KMS-backed signer.
package aws

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// LoadConfig builds an aws.Config. An explicit profile wins over
// AWS_PROFILE; profiles are skipped entirely inside Kubernetes where IRSA
// provides credentials.
func LoadConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	var options []func(*config.LoadOptions) error

	if !isInKubernetes() {
		options = append(options, config.WithSharedConfigProfile(resolveProfile(profile)))
	}
	if region != "" {
		options = append(options, config.WithRegion(region))
	}

	return config.LoadDefaultConfig(ctx, options...)
}

// GetCallerIdentity resolves the active credentials via STS. Used at
// startup to fail fast on broken credentials before the first signing call.
func GetCallerIdentity(ctx context.Context, cfg aws.Config) (*sts.GetCallerIdentityOutput, error) {
	stsClient := sts.NewFromConfig(cfg)
	return stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
}

func resolveProfile(profile string) string {
	if profile != "" {
		return profile
	}
	if envProfile := os.Getenv("AWS_PROFILE"); envProfile != "" {
		return envProfile
	}
	return "default"
}

// Service account token file presence is the simplest in-cluster signal
func isInKubernetes() bool {
	_, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount/token")
	return err == nil
}
