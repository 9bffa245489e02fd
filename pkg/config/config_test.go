package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddress:   ":8080",
		DomainName:      "AuthRail Token",
		DomainVersion:   "1",
		ChainID:         ChainId_Base,
		ContractAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		StoreBackend:    StoreBackendMemory,
	}
}

func TestServerConfig_Validate(t *testing.T) {
	cfg := validServerConfig()
	require.NoError(t, cfg.Validate())

	// Derived fields are filled in
	assert.Equal(t, ChainName_Base, cfg.ChainName)
	assert.Equal(t, 1024, cfg.EventCapacity)
}

func TestServerConfig_Validate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"empty listen address", func(c *ServerConfig) { c.ListenAddress = "" }},
		{"empty domain name", func(c *ServerConfig) { c.DomainName = "" }},
		{"empty domain version", func(c *ServerConfig) { c.DomainVersion = "" }},
		{"empty contract", func(c *ServerConfig) { c.ContractAddress = "" }},
		{"malformed contract", func(c *ServerConfig) { c.ContractAddress = "not-an-address" }},
		{"unknown chain", func(c *ServerConfig) { c.ChainID = 999 }},
		{"unknown backend", func(c *ServerConfig) { c.StoreBackend = "postgres" }},
		{"badger without dir", func(c *ServerConfig) { c.StoreBackend = StoreBackendBadger }},
		{"redis without address", func(c *ServerConfig) { c.StoreBackend = StoreBackendRedis }},
		{"negative rate limit", func(c *ServerConfig) { c.RateLimit = -1 }},
		{"negative event capacity", func(c *ServerConfig) { c.EventCapacity = -1 }},
		{"bad seed entry", func(c *ServerConfig) { c.SeedBalances = []string{"0x123"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validServerConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestServerConfig_Validate_BackendSettings(t *testing.T) {
	cfg := validServerConfig()
	cfg.StoreBackend = StoreBackendBadger
	cfg.StoreDir = "/var/lib/authrail"
	require.NoError(t, cfg.Validate())

	cfg = validServerConfig()
	cfg.StoreBackend = StoreBackendRedis
	cfg.RedisAddress = "localhost:6379"
	require.NoError(t, cfg.Validate())
}

func TestServerConfig_Validate_RateBurstDefault(t *testing.T) {
	cfg := validServerConfig()
	cfg.RateLimit = 10
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.RateBurst)
}

func TestParseSeedBalance(t *testing.T) {
	address, amount, err := ParseSeedBalance("0x1111111111111111111111111111111111111111=10000000")
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", address.Hex())
	assert.Equal(t, int64(10000000), amount.Int64())

	_, _, err = ParseSeedBalance("no-equals-sign")
	assert.Error(t, err)

	_, _, err = ParseSeedBalance("0x1111111111111111111111111111111111111111=-5")
	assert.Error(t, err)

	_, _, err = ParseSeedBalance("banana=5")
	assert.Error(t, err)
}

func TestResolveChain(t *testing.T) {
	id, err := ResolveChain("base")
	require.NoError(t, err)
	assert.Equal(t, ChainId_Base, id)

	id, err = ResolveChain("11155111")
	require.NoError(t, err)
	assert.Equal(t, ChainId_EthereumSepolia, id)

	_, err = ResolveChain("solana")
	assert.Error(t, err)

	_, err = ResolveChain("42")
	assert.Error(t, err)
}

func TestKMSSignerConfig_Validate(t *testing.T) {
	cfg := &KMSSignerConfig{
		KeyID:         "arn:aws:kms:us-east-1:111122223333:key/abcd",
		SignerAddress: "0x2222222222222222222222222222222222222222",
	}
	require.NoError(t, cfg.Validate())

	cfg.SignerAddress = "nope"
	assert.Error(t, cfg.Validate())

	cfg = &KMSSignerConfig{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyId")
}
