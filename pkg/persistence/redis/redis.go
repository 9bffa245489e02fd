package redis

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/authrail/authrail-go/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// namespace is prepended to every key so an authorization store can share a
// Redis database with other applications.
const namespace = "authrail:"

// RedisStore is a production-ready authorization store backed by Redis.
// Provides durable, distributed storage suitable for cloud-native deployments.
//
// Atomic units are serialized in-process and committed as one MULTI/EXEC.
// A deployment must route all writes for a given ledger through one node.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups).
	// If set, this prefix is prepended to all keys, e.g., "tenant1:" would result in
	// keys like "tenant1:authrail:nonce:...". If empty, keys use the default
	// "authrail:" namespace only.
	KeyPrefix string
}

// NewRedisStore creates a new Redis-backed authorization store.
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	// Create Redis client options
	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	// Create Redis client
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rs := &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	// Initialize schema version
	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.KeyPrefix != "" {
		logger.Sugar().Infow("Redis store initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)
	} else {
		logger.Sugar().Infow("Redis store initialized", "address", cfg.Address, "db", cfg.DB)
	}

	return rs, nil
}

// prefixKey adds the namespace and the custom key prefix (if configured) to a key
func (r *RedisStore) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return namespace + key
	}
	return r.keyPrefix + namespace + key
}

// initSchema initializes or validates the schema version
func (r *RedisStore) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(persistence.SchemaVersionKey)

	// Check if schema version exists
	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		// First time setup - set schema version
		return r.client.Set(ctx, schemaKey, persistence.SchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	// Validate existing schema version
	if existingVersion != persistence.SchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.SchemaVersion)
	}

	return nil
}

// AuthorizationUsed reports whether (authorizer, nonce) has been consumed
func (r *RedisStore) AuthorizationUsed(authorizer common.Address, nonce common.Hash) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	key := r.prefixKey(persistence.NonceKey(authorizer, nonce))

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read authorization state: %w", err)
	}

	return n > 0, nil
}

// Balance retrieves the committed balance for an account
func (r *RedisStore) Balance(account common.Address) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	key := r.prefixKey(persistence.BalanceKey(account))

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return new(big.Int), nil // Accounts never written hold zero
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}

	return persistence.DecodeBalance(data), nil
}

// Atomically runs fn against a staging overlay while holding the store lock,
// then flushes every staged write in one MULTI/EXEC. Nothing reaches Redis
// unless fn returns nil.
func (r *RedisStore) Atomically(fn func(txn persistence.AuthorizationTxn) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	txn := &redisTxn{
		store:           r,
		ctx:             ctx,
		pendingNonces:   make(map[string]bool),
		pendingBalances: make(map[string][]byte),
	}

	if err := fn(txn); err != nil {
		return err // Staged writes are discarded
	}

	if len(txn.pendingNonces) == 0 && len(txn.pendingBalances) == 0 {
		return nil
	}

	// Commit staged writes atomically
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key := range txn.pendingNonces {
			pipe.Set(ctx, key, persistence.UsedFlag, 0)
		}
		for key, data := range txn.pendingBalances {
			pipe.Set(ctx, key, data, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close shuts down the store
func (r *RedisStore) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	// Close Redis client
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis store closed")
	return nil
}

// HealthCheck verifies the store is operational
func (r *RedisStore) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Ping Redis to check connectivity
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	// Verify schema version exists
	schemaKey := r.prefixKey(persistence.SchemaVersionKey)
	_, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}

// redisTxn stages writes for one atomic unit. Maps are keyed by fully
// prefixed Redis keys; reads fall through to the server for anything not
// staged yet.
type redisTxn struct {
	store           *RedisStore
	ctx             context.Context
	pendingNonces   map[string]bool
	pendingBalances map[string][]byte
}

func (t *redisTxn) AuthorizationUsed(authorizer common.Address, nonce common.Hash) (bool, error) {
	key := t.store.prefixKey(persistence.NonceKey(authorizer, nonce))
	if t.pendingNonces[key] {
		return true, nil
	}

	n, err := t.store.client.Exists(t.ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read authorization state: %w", err)
	}

	return n > 0, nil
}

func (t *redisTxn) MarkAuthorizationUsed(authorizer common.Address, nonce common.Hash) error {
	t.pendingNonces[t.store.prefixKey(persistence.NonceKey(authorizer, nonce))] = true
	return nil
}

func (t *redisTxn) Balance(account common.Address) (*big.Int, error) {
	key := t.store.prefixKey(persistence.BalanceKey(account))
	if data, ok := t.pendingBalances[key]; ok {
		return persistence.DecodeBalance(data), nil
	}

	data, err := t.store.client.Get(t.ctx, key).Bytes()
	if err == redis.Nil {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}

	return persistence.DecodeBalance(data), nil
}

func (t *redisTxn) SetBalance(account common.Address, balance *big.Int) error {
	data, err := persistence.EncodeBalance(balance)
	if err != nil {
		return err
	}
	t.pendingBalances[t.store.prefixKey(persistence.BalanceKey(account))] = data
	return nil
}
