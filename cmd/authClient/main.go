package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/authrail/authrail-go/internal/aws"
	"github.com/authrail/authrail-go/pkg/client"
	"github.com/authrail/authrail-go/pkg/config"
	"github.com/authrail/authrail-go/pkg/eip712"
	"github.com/authrail/authrail-go/pkg/logger"
	"github.com/authrail/authrail-go/pkg/retry"
	"github.com/authrail/authrail-go/pkg/signer"
	"github.com/authrail/authrail-go/pkg/signer/awskms"
	"github.com/authrail/authrail-go/pkg/types"
)

func main() {
	app := &cli.App{
		Name:  "auth-client",
		Usage: "AuthRail Client for signing and submitting transfer authorizations",
		Description: `A client for building, signing, and submitting off-chain transfer
authorizations against an AuthRail server.

This client can:
- Sign transfer and receive authorizations with a local key, keystore file,
  mnemonic, or AWS KMS key
- Submit signed authorizations and cancel unused ones
- Query authorization state, balances, and the server's signing domain
- Produce signed test vectors for cross-implementation checks`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Aliases: []string{"s"},
				Value:   "http://localhost:8000",
				Usage:   "AuthRail server base URL",
				EnvVars: []string{config.EnvServerURL},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Hex-encoded secp256k1 private key",
				EnvVars: []string{config.EnvPrivateKey},
			},
			&cli.StringFlag{
				Name:    "keystore",
				Usage:   "Path to an encrypted keystore file",
				EnvVars: []string{config.EnvKeystorePath},
			},
			&cli.StringFlag{
				Name:    "keystore-password",
				Usage:   "Password for the keystore file",
				EnvVars: []string{config.EnvKeystorePassword},
			},
			&cli.StringFlag{
				Name:    "mnemonic",
				Usage:   "BIP-39 mnemonic phrase",
				EnvVars: []string{config.EnvMnemonic},
			},
			&cli.UintFlag{
				Name:    "mnemonic-index",
				Usage:   "Account index for mnemonic derivation (m/44'/60'/0'/0/index)",
				EnvVars: []string{config.EnvMnemonicIndex},
			},
			&cli.StringFlag{
				Name:    "kms-key-id",
				Usage:   "AWS KMS key id or alias for remote signing",
				EnvVars: []string{config.EnvKMSKeyID},
			},
			&cli.StringFlag{
				Name:    "kms-region",
				Usage:   "AWS region for the KMS key",
				EnvVars: []string{config.EnvKMSRegion},
			},
			&cli.StringFlag{
				Name:    "kms-profile",
				Usage:   "AWS shared config profile",
				EnvVars: []string{config.EnvKMSProfile},
			},
			&cli.StringFlag{
				Name:    "kms-signer-address",
				Usage:   "Address the KMS key must derive to",
				EnvVars: []string{config.EnvKMSSignerAddress},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "sign",
				Usage: "Build and sign an authorization without submitting it",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Recipient address",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "value",
						Usage:    "Amount in the ledger's smallest unit (base-10)",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "How long the authorization stays valid",
						Value: time.Hour,
					},
					&cli.BoolFlag{
						Name:  "receive",
						Usage: "Sign the receive variant (payee must countersign at submit time)",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Output file for the signed request JSON",
					},
				},
				Action: signCommand,
			},
			{
				Name:      "submit",
				Usage:     "Submit a signed request (file argument or stdin)",
				ArgsUsage: "[request.json]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "receive",
						Usage: "Treat the input as a receive request and countersign it with the configured key",
					},
				},
				Action: submitCommand,
			},
			{
				Name:  "cancel",
				Usage: "Cancel an unused authorization nonce",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "nonce",
						Usage:    "Hex-encoded 32-byte nonce to burn",
						Required: true,
					},
				},
				Action: cancelCommand,
			},
			{
				Name:  "state",
				Usage: "Query whether an (authorizer, nonce) pair has been used",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "authorizer",
						Usage: "Authorizer address (defaults to the configured key's address)",
					},
					&cli.StringFlag{
						Name:     "nonce",
						Usage:    "Hex-encoded 32-byte nonce",
						Required: true,
					},
				},
				Action: stateCommand,
			},
			{
				Name:  "balance",
				Usage: "Query an account balance",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "account",
						Usage: "Account address (defaults to the configured key's address)",
					},
				},
				Action: balanceCommand,
			},
			{
				Name:   "domain",
				Usage:  "Show the server's signing domain and type hashes",
				Action: domainCommand,
			},
			{
				Name:  "vectors",
				Usage: "Produce signed test vectors for cross-implementation checks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "to",
						Usage: "Recipient address for the vector authorization",
						Value: "0x2222222222222222222222222222222222222222",
					},
					&cli.StringFlag{
						Name:  "value",
						Usage: "Amount for the vector authorization",
						Value: "1000000",
					},
					&cli.StringFlag{
						Name:  "nonce",
						Usage: "Fixed nonce for the vector authorization",
						Value: "0x0000000000000000000000000000000000000000000000000000000000000001",
					},
					&cli.Int64Flag{
						Name:  "valid-after",
						Usage: "Fixed validAfter (UNIX seconds)",
						Value: 0,
					},
					&cli.Int64Flag{
						Name:  "valid-before",
						Usage: "Fixed validBefore (UNIX seconds)",
						Value: 2000000000,
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Output file for the vector JSON",
					},
				},
				Action: vectorsCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	return logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
}

// createClient creates the API client from CLI context
func createClient(c *cli.Context) (*client.Client, error) {
	zapLogger, err := newLogger(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	retryConfig := retry.DefaultConfig
	apiClient, err := client.NewClient(&client.Config{
		BaseURL: c.String("server-url"),
		Logger:  zapLogger,
		Retry:   &retryConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return apiClient, nil
}

// createSigner picks the signing backend from the global flags. AWS KMS wins
// over local key sources.
func createSigner(c *cli.Context) (signer.Signer, error) {
	if keyID := c.String("kms-key-id"); keyID != "" {
		zapLogger, err := newLogger(c)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		kmsConfig := &config.KMSSignerConfig{
			KeyID:         keyID,
			Region:        c.String("kms-region"),
			Profile:       c.String("kms-profile"),
			SignerAddress: c.String("kms-signer-address"),
		}
		awsConfig, err := aws.LoadConfig(c.Context, kmsConfig.Region, kmsConfig.Profile)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return awskms.NewSigner(c.Context, awsConfig, kmsConfig, zapLogger)
	}
	if path := c.String("keystore"); path != "" {
		return signer.NewLocalSigner(signer.WithKeystore(path, c.String("keystore-password")))
	}
	if mnemonic := c.String("mnemonic"); mnemonic != "" {
		return signer.NewLocalSigner(signer.WithMnemonic(mnemonic, uint32(c.Uint("mnemonic-index"))))
	}
	if key := c.String("private-key"); key != "" {
		return signer.NewLocalSigner(signer.WithPrivateKey(key))
	}
	return nil, fmt.Errorf("no signing key configured: set --private-key, --keystore, --mnemonic, or --kms-key-id")
}

// fetchDomain fetches the server's signing domain, rebuilds it locally, and
// verifies both sides agree on the separator before anything is signed.
func fetchDomain(c *cli.Context, apiClient *client.Client) (*eip712.Domain, error) {
	resp, err := apiClient.Domain(c.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch server domain: %w", err)
	}
	chainID, ok := new(big.Int).SetString(resp.ChainID, 10)
	if !ok {
		return nil, fmt.Errorf("server returned unparseable chain id %q", resp.ChainID)
	}
	domain := eip712.NewDomain(resp.Name, resp.Version, chainID, common.HexToAddress(resp.VerifyingContract))
	if separator := domain.Separator().Hex(); separator != resp.Separator {
		return nil, fmt.Errorf("domain separator mismatch: computed %s, server reports %s", separator, resp.Separator)
	}
	return domain, nil
}

// createBuilder wires the configured signer against the server's domain.
func createBuilder(c *cli.Context, apiClient *client.Client) (*signer.Builder, error) {
	s, err := createSigner(c)
	if err != nil {
		return nil, err
	}
	domain, err := fetchDomain(c, apiClient)
	if err != nil {
		return nil, err
	}
	return signer.NewBuilder(domain, s)
}

// signCommand handles the sign subcommand
func signCommand(c *cli.Context) error {
	toInput := c.String("to")
	if !common.IsHexAddress(toInput) {
		return fmt.Errorf("invalid recipient address: %s", toInput)
	}
	value, ok := new(big.Int).SetString(c.String("value"), 10)
	if !ok || value.Sign() < 0 {
		return fmt.Errorf("invalid value: %s", c.String("value"))
	}

	apiClient, err := createClient(c)
	if err != nil {
		return err
	}
	builder, err := createBuilder(c, apiClient)
	if err != nil {
		return err
	}

	auth, err := builder.NewAuthorization(common.HexToAddress(toInput), value, c.Duration("ttl"))
	if err != nil {
		return fmt.Errorf("failed to build authorization: %w", err)
	}

	var request any
	if c.Bool("receive") {
		sig, signErr := builder.SignReceive(c.Context, auth)
		if signErr != nil {
			return signErr
		}
		// The payee fills caller_signature at submit time.
		request = types.NewReceiveRequest(auth, sig, nil)
	} else {
		request, err = builder.TransferRequest(c.Context, auth)
		if err != nil {
			return err
		}
	}

	encoded, err := json.MarshalIndent(request, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	fmt.Printf("🔏 Signed authorization from %s\n", builder.Address().Hex())
	fmt.Printf("   nonce: %s\n", auth.Nonce.Hex())
	if outputFile := c.String("output"); outputFile != "" {
		if err := os.WriteFile(outputFile, encoded, 0644); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
		fmt.Printf("✅ Signed request written to: %s\n", outputFile)
	} else {
		fmt.Println(string(encoded))
	}
	return nil
}

// submitCommand handles the submit subcommand
func submitCommand(c *cli.Context) error {
	payload, err := readInput(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	apiClient, err := createClient(c)
	if err != nil {
		return err
	}

	if c.Bool("receive") {
		var request types.ReceiveRequest
		if err := json.Unmarshal(payload, &request); err != nil {
			return fmt.Errorf("failed to decode receive request: %w", err)
		}
		auth, payerSig, err := parseReceivePayload(&request)
		if err != nil {
			return fmt.Errorf("invalid receive request: %w", err)
		}

		builder, err := createBuilder(c, apiClient)
		if err != nil {
			return err
		}
		callerSig, err := builder.SignReceiveCaller(c.Context, auth)
		if err != nil {
			return err
		}
		if err := apiClient.Receive(c.Context, auth, payerSig, callerSig); err != nil {
			return fmt.Errorf("receive rejected: %w", err)
		}
		fmt.Printf("✅ Receive applied: %s -> %s, value %s\n", auth.From.Hex(), auth.To.Hex(), auth.Value)
		return nil
	}

	var request types.TransferRequest
	if err := json.Unmarshal(payload, &request); err != nil {
		return fmt.Errorf("failed to decode transfer request: %w", err)
	}
	auth, sig, err := request.Authorization()
	if err != nil {
		return fmt.Errorf("invalid transfer request: %w", err)
	}
	if err := apiClient.Transfer(c.Context, auth, sig); err != nil {
		return fmt.Errorf("transfer rejected: %w", err)
	}
	fmt.Printf("✅ Transfer applied: %s -> %s, value %s\n", auth.From.Hex(), auth.To.Hex(), auth.Value)
	return nil
}

// parseReceivePayload extracts the authorization and the payer's signature
// from a receive request. The caller signature in the file is ignored; the
// submitting payee always re-signs.
func parseReceivePayload(request *types.ReceiveRequest) (*types.Authorization, []byte, error) {
	payerFields := types.TransferRequest{
		From:        request.From,
		To:          request.To,
		Value:       request.Value,
		ValidAfter:  request.ValidAfter,
		ValidBefore: request.ValidBefore,
		Nonce:       request.Nonce,
		Signature:   request.Signature,
	}
	return payerFields.Authorization()
}

// cancelCommand handles the cancel subcommand
func cancelCommand(c *cli.Context) error {
	nonce, err := types.ParseNonce(c.String("nonce"))
	if err != nil {
		return fmt.Errorf("invalid nonce: %w", err)
	}

	apiClient, err := createClient(c)
	if err != nil {
		return err
	}
	builder, err := createBuilder(c, apiClient)
	if err != nil {
		return err
	}

	cancellation, sig, err := builder.SignCancel(c.Context, nonce)
	if err != nil {
		return err
	}
	if err := apiClient.Cancel(c.Context, cancellation, sig); err != nil {
		return fmt.Errorf("cancel rejected: %w", err)
	}
	fmt.Printf("✅ Authorization canceled: authorizer %s, nonce %s\n", cancellation.Authorizer.Hex(), nonce.Hex())
	return nil
}

// stateCommand handles the state subcommand
func stateCommand(c *cli.Context) error {
	nonce, err := types.ParseNonce(c.String("nonce"))
	if err != nil {
		return fmt.Errorf("invalid nonce: %w", err)
	}

	apiClient, err := createClient(c)
	if err != nil {
		return err
	}
	authorizer, err := resolveAddress(c, c.String("authorizer"))
	if err != nil {
		return err
	}

	used, err := apiClient.AuthorizationState(c.Context, authorizer, nonce)
	if err != nil {
		return fmt.Errorf("state query failed: %w", err)
	}
	fmt.Printf("Authorizer: %s\n", authorizer.Hex())
	fmt.Printf("Nonce:      %s\n", nonce.Hex())
	fmt.Printf("Used:       %t\n", used)
	return nil
}

// balanceCommand handles the balance subcommand
func balanceCommand(c *cli.Context) error {
	apiClient, err := createClient(c)
	if err != nil {
		return err
	}
	account, err := resolveAddress(c, c.String("account"))
	if err != nil {
		return err
	}

	balance, err := apiClient.Balance(c.Context, account)
	if err != nil {
		return fmt.Errorf("balance query failed: %w", err)
	}
	fmt.Printf("Account: %s\n", account.Hex())
	fmt.Printf("Balance: %s\n", balance)
	return nil
}

// domainCommand handles the domain subcommand
func domainCommand(c *cli.Context) error {
	apiClient, err := createClient(c)
	if err != nil {
		return err
	}

	domainResp, err := apiClient.Domain(c.Context)
	if err != nil {
		return fmt.Errorf("domain query failed: %w", err)
	}
	typesResp, err := apiClient.TypeHashes(c.Context)
	if err != nil {
		return fmt.Errorf("types query failed: %w", err)
	}

	fmt.Printf("Name:               %s\n", domainResp.Name)
	fmt.Printf("Version:            %s\n", domainResp.Version)
	fmt.Printf("Chain ID:           %s\n", domainResp.ChainID)
	fmt.Printf("Verifying contract: %s\n", domainResp.VerifyingContract)
	fmt.Printf("Domain separator:   %s\n", domainResp.Separator)
	fmt.Printf("Transfer type hash: %s\n", typesResp.TransferTypeHash)
	fmt.Printf("Receive type hash:  %s\n", typesResp.ReceiveTypeHash)
	fmt.Printf("Cancel type hash:   %s\n", typesResp.CancelTypeHash)

	// Recompute the separator locally so drift between implementations
	// surfaces here instead of as invalid_signature rejections.
	if _, err := fetchDomain(c, apiClient); err != nil {
		return err
	}
	fmt.Println("✅ Separator verified against the local encoder")
	return nil
}

// vectorsCommand handles the vectors subcommand
func vectorsCommand(c *cli.Context) error {
	toInput := c.String("to")
	if !common.IsHexAddress(toInput) {
		return fmt.Errorf("invalid recipient address: %s", toInput)
	}
	value, ok := new(big.Int).SetString(c.String("value"), 10)
	if !ok || value.Sign() < 0 {
		return fmt.Errorf("invalid value: %s", c.String("value"))
	}
	nonce, err := types.ParseNonce(c.String("nonce"))
	if err != nil {
		return fmt.Errorf("invalid nonce: %w", err)
	}

	apiClient, err := createClient(c)
	if err != nil {
		return err
	}
	s, err := createSigner(c)
	if err != nil {
		return err
	}
	domain, err := fetchDomain(c, apiClient)
	if err != nil {
		return err
	}

	auth := &types.Authorization{
		From:        s.Address(),
		To:          common.HexToAddress(toInput),
		Value:       value,
		ValidAfter:  big.NewInt(c.Int64("valid-after")),
		ValidBefore: big.NewInt(c.Int64("valid-before")),
		Nonce:       nonce,
	}
	cancellation := &types.Cancellation{Authorizer: s.Address(), Nonce: nonce}

	transferSig, err := s.SignDigest(c.Context, domain.TransferDigest(auth))
	if err != nil {
		return fmt.Errorf("failed to sign transfer vector: %w", err)
	}
	receiveSig, err := s.SignDigest(c.Context, domain.ReceiveDigest(auth))
	if err != nil {
		return fmt.Errorf("failed to sign receive vector: %w", err)
	}
	cancelSig, err := s.SignDigest(c.Context, domain.CancelDigest(cancellation))
	if err != nil {
		return fmt.Errorf("failed to sign cancel vector: %w", err)
	}

	vectors := struct {
		Signer            string                 `json:"signer"`
		DomainSeparator   string                 `json:"domain_separator"`
		Authorization     *types.TransferRequest `json:"authorization"`
		TransferDigest    string                 `json:"transfer_digest"`
		ReceiveDigest     string                 `json:"receive_digest"`
		CancelDigest      string                 `json:"cancel_digest"`
		TransferSignature string                 `json:"transfer_signature"`
		ReceiveSignature  string                 `json:"receive_signature"`
		CancelSignature   string                 `json:"cancel_signature"`
	}{
		Signer:            s.Address().Hex(),
		DomainSeparator:   domain.Separator().Hex(),
		Authorization:     types.NewTransferRequest(auth, transferSig),
		TransferDigest:    domain.TransferDigest(auth).Hex(),
		ReceiveDigest:     domain.ReceiveDigest(auth).Hex(),
		CancelDigest:      domain.CancelDigest(cancellation).Hex(),
		TransferSignature: hexutil.Encode(transferSig),
		ReceiveSignature:  hexutil.Encode(receiveSig),
		CancelSignature:   hexutil.Encode(cancelSig),
	}

	encoded, err := json.MarshalIndent(vectors, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode vectors: %w", err)
	}

	if outputFile := c.String("output"); outputFile != "" {
		if err := os.WriteFile(outputFile, encoded, 0644); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
		fmt.Printf("✅ Vectors written to: %s\n", outputFile)
	} else {
		fmt.Println(string(encoded))
	}
	return nil
}

// resolveAddress validates an address flag, falling back to the configured
// key's address when the flag is empty.
func resolveAddress(c *cli.Context, input string) (common.Address, error) {
	if input != "" {
		if !common.IsHexAddress(input) {
			return common.Address{}, fmt.Errorf("invalid address: %s", input)
		}
		return common.HexToAddress(input), nil
	}
	s, err := createSigner(c)
	if err != nil {
		return common.Address{}, err
	}
	return s.Address(), nil
}

// readInput loads a request payload from a file argument, or stdin when the
// argument is empty or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
