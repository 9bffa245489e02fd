package main

import (
	"fmt"
	"log"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/authrail/authrail-go/pkg/config"
	"github.com/authrail/authrail-go/pkg/eip712"
	"github.com/authrail/authrail-go/pkg/engine"
	"github.com/authrail/authrail-go/pkg/events"
	"github.com/authrail/authrail-go/pkg/journal"
	"github.com/authrail/authrail-go/pkg/logger"
	"github.com/authrail/authrail-go/pkg/metrics"
	"github.com/authrail/authrail-go/pkg/node"
	"github.com/authrail/authrail-go/pkg/persistence"
	"github.com/authrail/authrail-go/pkg/persistence/badger"
	"github.com/authrail/authrail-go/pkg/persistence/memory"
	"github.com/authrail/authrail-go/pkg/persistence/redis"
)

func main() {
	app := &cli.App{
		Name:  "auth-server",
		Usage: "AuthRail Authorization Server",
		Description: `An off-chain authorization transfer service.

This server implements:
- transferWithAuthorization / receiveWithAuthorization / cancelAuthorization
- Domain-scoped signature verification with replay protection
- Atomic nonce registry and balance ledger updates
- Event feed with Merkle journal checkpoints`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen-address",
				Aliases: []string{"l"},
				Value:   ":8000",
				Usage:   "HTTP listen address",
				EnvVars: []string{config.EnvListenAddress},
			},
			&cli.StringFlag{
				Name:     "domain-name",
				Aliases:  []string{"n"},
				Usage:    "Signing domain name (part of the domain separator)",
				EnvVars:  []string{config.EnvDomainName},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "domain-version",
				Value:   "1",
				Usage:   "Signing domain version (part of the domain separator)",
				EnvVars: []string{config.EnvDomainVersion},
			},
			&cli.StringFlag{
				Name:     "chain",
				Aliases:  []string{"chain-id"},
				Usage:    fmt.Sprintf("Chain ID or name: %s", config.GetSupportedChainIDsString()),
				EnvVars:  []string{config.EnvChainID},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "contract-address",
				Aliases:  []string{"contract"},
				Usage:    "Verifying contract address (part of the domain separator)",
				EnvVars:  []string{config.EnvContractAddress},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "store",
				Value:   config.StoreBackendBadger.String(),
				Usage:   "Store backend: badger, memory (testing only), redis",
				EnvVars: []string{config.EnvStoreBackend},
			},
			&cli.StringFlag{
				Name:    "store-dir",
				Value:   "./authrail-data",
				Usage:   "Data directory for the badger backend",
				EnvVars: []string{config.EnvStoreDir},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis server address (host:port) for the redis backend",
				EnvVars: []string{config.EnvRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Optional Redis key prefix for multi-tenant setups",
				EnvVars: []string{config.EnvRedisKeyPrefix},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Usage:   "Requests per second per client IP, 0 disables limiting",
				EnvVars: []string{config.EnvRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Usage:   "Burst size when rate limiting is enabled",
				EnvVars: []string{config.EnvRateBurst},
			},
			&cli.IntFlag{
				Name:    "event-capacity",
				Usage:   "In-memory event ring size",
				EnvVars: []string{config.EnvEventCapacity},
			},
			&cli.StringSliceFlag{
				Name:    "seed-balance",
				Usage:   "Startup balance seed entry of the form 0xaddress=amount (repeatable)",
				EnvVars: []string{config.EnvSeedBalances},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvVerbose},
			},
		},
		Action: runAuthServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runAuthServer(c *cli.Context) error {
	// Create logger
	loggerConfig := &logger.LoggerConfig{
		Debug: c.Bool("verbose"),
	}
	l, err := logger.NewLogger(loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	// Parse configuration from flags/environment
	serverConfig, err := parseServerConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Validate configuration
	if err := serverConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l.Sugar().Infow("Using chain", "name", serverConfig.ChainName, "chain_id", serverConfig.ChainID)

	// Open the selected store backend
	store, err := openStore(serverConfig, l)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", serverConfig.StoreBackend, err)
	}

	if err := seedBalances(store, serverConfig.SeedBalances, l); err != nil {
		return fmt.Errorf("failed to seed balances: %w", err)
	}

	domain := eip712.NewDomain(
		serverConfig.DomainName,
		serverConfig.DomainVersion,
		new(big.Int).SetUint64(uint64(serverConfig.ChainID)),
		common.HexToAddress(serverConfig.ContractAddress),
	)

	// Event pipeline: recent-events ring, journal checkpoints, structured
	// log, metrics counters
	recent := events.NewMemorySink(serverConfig.EventCapacity)
	eventJournal := journal.New()
	m := metrics.New()

	eng := engine.New(store, domain,
		engine.WithLogger(l),
		engine.WithEvents(events.NewMultiSink(recent, eventJournal, events.NewLogSink(l), m.EventSink())),
		engine.WithMetrics(m),
	)

	server := node.NewServer(eng, store, serverConfig.ListenAddress, node.Options{
		Recent:    recent,
		Journal:   eventJournal,
		Logger:    l,
		Metrics:   m,
		RateLimit: serverConfig.RateLimit,
		RateBurst: serverConfig.RateBurst,
	})

	if c.Bool("verbose") {
		l.Sugar().Infow("Authorization Server Configuration",
			"listen_address", serverConfig.ListenAddress,
			"domain_name", serverConfig.DomainName,
			"domain_version", serverConfig.DomainVersion,
			"chain", serverConfig.ChainName,
			"contract_address", serverConfig.ContractAddress,
			"store", serverConfig.StoreBackend,
			"domain_separator", domain.Separator().Hex())
	}

	l.Sugar().Infow("Starting Authorization Server",
		"listen_address", serverConfig.ListenAddress,
		"domain_separator", domain.Separator().Hex())

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Available endpoints",
		"transfer", "POST /v1/authorization/transfer",
		"receive", "POST /v1/authorization/receive",
		"cancel", "POST /v1/authorization/cancel",
		"state", "GET /v1/authorization/state",
		"domain", "GET /v1/domain",
		"balance", "GET /v1/balance/{account}",
		"events", "GET /v1/events")
	l.Sugar().Info("Press Ctrl+C to stop")

	// Keep the server running
	select {}
}

func parseServerConfig(c *cli.Context) (*config.ServerConfig, error) {
	chainID, err := config.ResolveChain(c.String("chain"))
	if err != nil {
		return nil, err
	}
	return &config.ServerConfig{
		ListenAddress:   c.String("listen-address"),
		DomainName:      c.String("domain-name"),
		DomainVersion:   c.String("domain-version"),
		ChainID:         chainID,
		ContractAddress: c.String("contract-address"),
		StoreBackend:    config.StoreBackend(c.String("store")),
		StoreDir:        c.String("store-dir"),
		RedisAddress:    c.String("redis-address"),
		RedisPassword:   c.String("redis-password"),
		RedisDB:         c.Int("redis-db"),
		RedisKeyPrefix:  c.String("redis-key-prefix"),
		RateLimit:       c.Float64("rate-limit"),
		RateBurst:       c.Int("rate-burst"),
		EventCapacity:   c.Int("event-capacity"),
		SeedBalances:    c.StringSlice("seed-balance"),
		Debug:           c.Bool("verbose"),
		Verbose:         c.Bool("verbose"),
	}, nil
}

func openStore(cfg *config.ServerConfig, l *zap.Logger) (persistence.IAuthorizationStore, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendBadger:
		return badger.NewBadgerStore(cfg.StoreDir, l)
	case config.StoreBackendRedis:
		return redis.NewRedisStore(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, l)
	case config.StoreBackendMemory:
		return memory.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

// seedBalances applies startup-only absolute balance seeds in one atomic
// unit.
func seedBalances(store persistence.IAuthorizationStore, entries []string, l *zap.Logger) error {
	if len(entries) == 0 {
		return nil
	}
	return store.Atomically(func(txn persistence.AuthorizationTxn) error {
		for _, entry := range entries {
			account, amount, err := config.ParseSeedBalance(entry)
			if err != nil {
				return fmt.Errorf("invalid seed balance entry %q: %w", entry, err)
			}
			if err := txn.SetBalance(account, amount); err != nil {
				return err
			}
			l.Sugar().Infow("Seeded balance", "account", account.Hex(), "balance", amount.String())
		}
		return nil
	})
}
