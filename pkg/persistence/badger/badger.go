package badger

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"time"

	"github.com/authrail/authrail-go/pkg/persistence"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// maxTxnRetries bounds optimistic-concurrency retries. Badger detects write
// conflicts at commit time; re-running the unit against fresh state is safe
// because units re-read everything they depend on.
const maxTxnRetries = 3

// BadgerStore is a production-ready authorization store backed by Badger.
// Provides durable, disk-based storage with ACID guarantees.
type BadgerStore struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerStore creates a new Badger-backed authorization store.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for garbage collection.
func NewBadgerStore(dataPath string, logger *zap.Logger) (*BadgerStore, error) {
	// Convert to absolute path
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// Configure Badger for production use
	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true // Ensure durability (fsync on every write)
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1 // We don't need versioning within Badger

	// Open database
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bs := &BadgerStore{
		db:     db,
		logger: logger,
	}

	// Initialize schema version
	if err := bs.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Start background GC
	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx)

	logger.Sugar().Infow("Badger store initialized", "path", absPath)

	return bs, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerStore) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(persistence.SchemaVersionKey))
		if err == badgerdb.ErrKeyNotFound {
			// First time setup - set schema version
			return txn.Set([]byte(persistence.SchemaVersionKey), []byte(persistence.SchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		// Validate existing schema version
		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != persistence.SchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.SchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerStore) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Run value log GC with 0.5 discard ratio
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// AuthorizationUsed reports whether (authorizer, nonce) has been consumed
func (b *BadgerStore) AuthorizationUsed(authorizer common.Address, nonce common.Hash) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, fmt.Errorf("persistence layer is closed")
	}

	key := persistence.NonceKey(authorizer, nonce)

	var used bool
	err := b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Never used
		}
		if err != nil {
			return err
		}
		used = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to read authorization state: %w", err)
	}

	return used, nil
}

// Balance retrieves the committed balance for an account
func (b *BadgerStore) Balance(account common.Address) (*big.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	key := persistence.BalanceKey(account)

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Accounts never written hold zero
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...) // Copy value
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}

	return persistence.DecodeBalance(data), nil
}

// Atomically runs fn inside one Badger read-write transaction. Writes commit
// only if fn returns nil; conflicts with concurrent transactions are retried
// a bounded number of times.
func (b *BadgerStore) Atomically(fn func(txn persistence.AuthorizationTxn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = b.db.Update(func(txn *badgerdb.Txn) error {
			return fn(&badgerTxn{txn: txn})
		})
		if err != badgerdb.ErrConflict {
			return err
		}
		b.logger.Sugar().Warnw("Badger transaction conflict, retrying", "attempt", attempt+1)
	}

	return fmt.Errorf("transaction aborted after %d conflicts: %w", maxTxnRetries, err)
}

// Close shuts down the store
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	// Stop GC goroutine
	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	// Close database
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger store closed")
	return nil
}

// HealthCheck verifies the store is operational
func (b *BadgerStore) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	// Try a simple read operation to verify database is accessible
	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(persistence.SchemaVersionKey))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}

// badgerTxn exposes one Badger transaction as an AuthorizationTxn. Reads see
// writes staged earlier in the same transaction.
type badgerTxn struct {
	txn *badgerdb.Txn
}

func (t *badgerTxn) AuthorizationUsed(authorizer common.Address, nonce common.Hash) (bool, error) {
	_, err := t.txn.Get([]byte(persistence.NonceKey(authorizer, nonce)))
	if err == badgerdb.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read authorization state: %w", err)
	}
	return true, nil
}

func (t *badgerTxn) MarkAuthorizationUsed(authorizer common.Address, nonce common.Hash) error {
	return t.txn.Set([]byte(persistence.NonceKey(authorizer, nonce)), persistence.UsedFlag)
}

func (t *badgerTxn) Balance(account common.Address) (*big.Int, error) {
	item, err := t.txn.Get([]byte(persistence.BalanceKey(account)))
	if err == badgerdb.ErrKeyNotFound {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}

	var data []byte
	err = item.Value(func(val []byte) error {
		data = append([]byte{}, val...) // Copy value
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read balance value: %w", err)
	}

	return persistence.DecodeBalance(data), nil
}

func (t *badgerTxn) SetBalance(account common.Address, balance *big.Int) error {
	data, err := persistence.EncodeBalance(balance)
	if err != nil {
		return err
	}
	return t.txn.Set([]byte(persistence.BalanceKey(account)), data)
}
