package main

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/authrail/authrail-go/pkg/config"
	"github.com/authrail/authrail-go/pkg/logger"
	"github.com/authrail/authrail-go/pkg/persistence"
	"github.com/authrail/authrail-go/pkg/persistence/badger"
	"github.com/authrail/authrail-go/pkg/persistence/redis"
)

// Seeds absolute balances into a store while the server is offline. Entries
// come from AUTHRAIL_SEED_BALANCES as comma-separated 0xaddress=amount pairs.
func main() {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	entries := os.Getenv(config.EnvSeedBalances)
	if entries == "" {
		l.Sugar().Fatalf("%s environment variable is not set", config.EnvSeedBalances)
	}

	store, err := openStore(l)
	if err != nil {
		l.Sugar().Fatalw("failed to open store", "error", err)
	}
	defer func() { _ = store.Close() }()

	err = store.Atomically(func(txn persistence.AuthorizationTxn) error {
		for _, entry := range strings.Split(entries, ",") {
			account, amount, parseErr := config.ParseSeedBalance(strings.TrimSpace(entry))
			if parseErr != nil {
				return fmt.Errorf("invalid seed balance entry %q: %w", entry, parseErr)
			}
			if setErr := txn.SetBalance(account, amount); setErr != nil {
				return setErr
			}
			l.Sugar().Infow("Seeded balance", "account", account.Hex(), "balance", amount.String())
		}
		return nil
	})
	if err != nil {
		l.Sugar().Fatalw("failed to seed balances", "error", err)
	}
}

func openStore(l *zap.Logger) (persistence.IAuthorizationStore, error) {
	backend := config.StoreBackend(os.Getenv(config.EnvStoreBackend))
	if backend == "" {
		backend = config.StoreBackendBadger
	}
	switch backend {
	case config.StoreBackendBadger:
		dir := os.Getenv(config.EnvStoreDir)
		if dir == "" {
			dir = "./authrail-data"
		}
		return badger.NewBadgerStore(dir, l)
	case config.StoreBackendRedis:
		return redis.NewRedisStore(&redis.RedisConfig{
			Address:  os.Getenv(config.EnvRedisAddress),
			Password: os.Getenv(config.EnvRedisPassword),
		}, l)
	default:
		return nil, fmt.Errorf("unsupported store backend %q for offline seeding", backend)
	}
}
