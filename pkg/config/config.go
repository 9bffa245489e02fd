package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/authrail/authrail-go/pkg/events"
)

// Environment variable names for authorization server configuration
const (
	EnvListenAddress   = "AUTHRAIL_LISTEN_ADDRESS"
	EnvDomainName      = "AUTHRAIL_DOMAIN_NAME"
	EnvDomainVersion   = "AUTHRAIL_DOMAIN_VERSION"
	EnvChainID         = "AUTHRAIL_CHAIN_ID"
	EnvContractAddress = "AUTHRAIL_CONTRACT_ADDRESS"
	EnvStoreBackend    = "AUTHRAIL_STORE"
	EnvStoreDir        = "AUTHRAIL_STORE_DIR"
	EnvRedisAddress    = "AUTHRAIL_REDIS_ADDRESS"
	EnvRedisPassword   = "AUTHRAIL_REDIS_PASSWORD"
	EnvRedisDB         = "AUTHRAIL_REDIS_DB"
	EnvRedisKeyPrefix  = "AUTHRAIL_REDIS_KEY_PREFIX"
	EnvRateLimit       = "AUTHRAIL_RATE_LIMIT"
	EnvRateBurst       = "AUTHRAIL_RATE_BURST"
	EnvEventCapacity   = "AUTHRAIL_EVENT_CAPACITY"
	EnvSeedBalances    = "AUTHRAIL_SEED_BALANCES"
	EnvVerbose         = "AUTHRAIL_VERBOSE"
)

// Environment variable names for client signing configuration
const (
	EnvServerURL        = "AUTHRAIL_SERVER_URL"
	EnvPrivateKey       = "AUTHRAIL_PRIVATE_KEY"
	EnvKeystorePath     = "AUTHRAIL_KEYSTORE"
	EnvKeystorePassword = "AUTHRAIL_KEYSTORE_PASSWORD"
	EnvMnemonic         = "AUTHRAIL_MNEMONIC"
	EnvMnemonicIndex    = "AUTHRAIL_MNEMONIC_INDEX"
	EnvKMSKeyID         = "AUTHRAIL_KMS_KEY_ID"
	EnvKMSRegion        = "AUTHRAIL_KMS_REGION"
	EnvKMSProfile       = "AUTHRAIL_KMS_PROFILE"
	EnvKMSSignerAddress = "AUTHRAIL_KMS_SIGNER_ADDRESS"
)

type StoreBackend string

func (s StoreBackend) String() string {
	return string(s)
}

const (
	StoreBackendBadger StoreBackend = "badger"
	StoreBackendMemory StoreBackend = "memory" // memory is for testing only, nothing survives a restart
	StoreBackendRedis  StoreBackend = "redis"
)

// GetSupportedStoreBackends returns all supported store backends
func GetSupportedStoreBackends() []StoreBackend {
	return []StoreBackend{
		StoreBackendBadger,
		StoreBackendMemory,
		StoreBackendRedis,
	}
}

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_Base            ChainId = 8453
	ChainId_BaseSepolia     ChainId = 84532
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_Base            ChainName = "base"
	ChainName_BaseSepolia     ChainName = "base-sepolia"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_Base:            ChainName_Base,
	ChainId_BaseSepolia:     ChainName_BaseSepolia,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_Base:            ChainId_Base,
	ChainName_BaseSepolia:     ChainId_BaseSepolia,
}

// GetSupportedChainIDs returns all supported chain IDs
func GetSupportedChainIDs() []ChainId {
	return []ChainId{
		ChainId_EthereumMainnet,
		ChainId_EthereumSepolia,
		ChainId_Base,
		ChainId_BaseSepolia,
	}
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (sepolia), %d (base), %d (base-sepolia)",
		ChainId_EthereumMainnet, ChainId_EthereumSepolia, ChainId_Base, ChainId_BaseSepolia)
}

// ResolveChain accepts either a decimal chain id or a chain name and returns
// the chain id
func ResolveChain(value string) (ChainId, error) {
	if id, ok := ChainNameToId[ChainName(strings.ToLower(value))]; ok {
		return id, nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || !parsed.IsUint64() {
		return 0, fmt.Errorf("unrecognized chain %q. Supported: %s", value, GetSupportedChainIDsString())
	}
	id := ChainId(parsed.Uint64())
	if _, ok := ChainIdToName[id]; !ok {
		return 0, fmt.Errorf("unsupported chain ID %d. Supported: %s", id, GetSupportedChainIDsString())
	}
	return id, nil
}

// ServerConfig represents the complete configuration for an authorization server
type ServerConfig struct {
	// Service binding
	ListenAddress string `json:"listen_address"`

	// Signing domain; every field is part of the domain separator
	DomainName      string    `json:"domain_name"`
	DomainVersion   string    `json:"domain_version"`
	ChainID         ChainId   `json:"chain_id"`
	ChainName       ChainName `json:"chain_name"`
	ContractAddress string    `json:"contract_address"`

	// Storage backend selection and backend-specific settings
	StoreBackend   StoreBackend `json:"store_backend"`
	StoreDir       string       `json:"store_dir,omitempty"`        // badger only
	RedisAddress   string       `json:"redis_address,omitempty"`    // redis only
	RedisPassword  string       `json:"redis_password,omitempty"`   // redis only
	RedisDB        int          `json:"redis_db,omitempty"`         // redis only
	RedisKeyPrefix string       `json:"redis_key_prefix,omitempty"` // redis only

	// Service limits
	RateLimit     float64 `json:"rate_limit"`     // requests/second per client IP, 0 disables limiting
	RateBurst     int     `json:"rate_burst"`     // burst size when rate limiting is enabled
	EventCapacity int     `json:"event_capacity"` // in-memory event ring size

	// Startup-only ledger seeding, entries of the form "0xaddress=amount"
	SeedBalances []string `json:"seed_balances,omitempty"`

	// Operational settings
	Debug   bool `json:"debug"`
	Verbose bool `json:"verbose"`
}

// Validate validates the authorization server configuration and fills in
// derived fields
func (c *ServerConfig) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	if c.DomainName == "" {
		return fmt.Errorf("domain name cannot be empty")
	}
	if c.DomainVersion == "" {
		return fmt.Errorf("domain version cannot be empty")
	}

	if c.ContractAddress == "" {
		return fmt.Errorf("contract address cannot be empty")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("invalid contract address format: %s", c.ContractAddress)
	}

	chainName, exists := ChainIdToName[c.ChainID]
	if !exists {
		return fmt.Errorf("unsupported chain ID %d. Supported: %s", c.ChainID, GetSupportedChainIDsString())
	}
	c.ChainName = chainName

	switch c.StoreBackend {
	case StoreBackendBadger:
		if c.StoreDir == "" {
			return fmt.Errorf("store dir is required for the badger backend")
		}
	case StoreBackendRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
	case StoreBackendMemory:
		// no backend settings
	default:
		return fmt.Errorf("unsupported store backend %q. Supported: badger, memory, redis", c.StoreBackend)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %g", c.RateLimit)
	}
	if c.RateBurst < 0 {
		return fmt.Errorf("rate burst cannot be negative, got %d", c.RateBurst)
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		c.RateBurst = 1
	}

	if c.EventCapacity < 0 {
		return fmt.Errorf("event capacity cannot be negative, got %d", c.EventCapacity)
	}
	if c.EventCapacity == 0 {
		c.EventCapacity = events.DefaultMemorySinkCapacity
	}

	for _, entry := range c.SeedBalances {
		if _, _, err := ParseSeedBalance(entry); err != nil {
			return fmt.Errorf("invalid seed balance entry %q: %w", entry, err)
		}
	}

	return nil
}

// ParseSeedBalance parses one "0xaddress=amount" seed entry. Amounts are
// base-10 and must not be negative.
func ParseSeedBalance(entry string) (common.Address, *big.Int, error) {
	parts := strings.SplitN(entry, "=", 2)
	if len(parts) != 2 {
		return common.Address{}, nil, fmt.Errorf("expected address=amount")
	}
	if !common.IsHexAddress(parts[0]) {
		return common.Address{}, nil, fmt.Errorf("invalid address: %s", parts[0])
	}
	amount, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("invalid amount: %s", parts[1])
	}
	if amount.Sign() < 0 {
		return common.Address{}, nil, fmt.Errorf("amount cannot be negative: %s", parts[1])
	}
	return common.HexToAddress(parts[0]), amount, nil
}

// KMSSignerConfig configures the AWS KMS-backed signer used by the client
// tooling.
type KMSSignerConfig struct {
	KeyID         string `json:"keyId" yaml:"keyId"`
	Region        string `json:"region" yaml:"region"`
	Profile       string `json:"profile" yaml:"profile"`
	SignerAddress string `json:"signerAddress" yaml:"signerAddress"`
}

func (kc *KMSSignerConfig) Validate() error {
	var allErrors field.ErrorList
	if kc.KeyID == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("keyId"), "keyId is required"))
	}
	if kc.SignerAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("signerAddress"), "signerAddress is required"))
	} else if !common.IsHexAddress(kc.SignerAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("signerAddress"), kc.SignerAddress, "must be a 20-byte hex address"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
