// Package redisstore keeps identity bindings in Redis, one string key per
// identity. SET replaces the value atomically, so readers never observe a
// partially written address.
package redisstore

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
)

// Redis key templates
const (
	keyPrefixIdentity    = "vault:identity:"
	keySchemaVersion     = "vault:metadata:schema_version"
	currentSchemaVersion = "v1"
)

type Store struct {
	rdb       *redis.Client
	log       *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

type Config struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix is prepended to every key for multi-tenant deployments.
	KeyPrefix string
}

// Open dials Redis, verifies connectivity and initializes the schema marker.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", cfg.Addr)
	}

	s, err := New(ctx, rdb, cfg.KeyPrefix, log)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	log.Info("redis identity store initialized", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return s, nil
}

// New wraps an existing client. Tests pass a miniredis-backed client.
func New(ctx context.Context, rdb *redis.Client, keyPrefix string, log *zap.Logger) (*Store, error) {
	s := &Store{rdb: rdb, log: log, keyPrefix: keyPrefix}
	if err := s.initSchema(ctx); err != nil {
		return nil, errors.Wrap(err, "initialize schema")
	}
	return s, nil
}

func (s *Store) key(k string) string {
	return s.keyPrefix + k
}

func (s *Store) initSchema(ctx context.Context) error {
	schemaKey := s.key(keySchemaVersion)
	existing, err := s.rdb.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return s.rdb.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return errors.Wrap(err, "read schema version")
	}
	if existing != currentSchemaVersion {
		return errors.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id identity.ID) (common.Address, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return common.Address{}, false, errors.New("store is closed")
	}

	val, err := s.rdb.Get(ctx, s.key(keyPrefixIdentity+string(id))).Result()
	if err == redis.Nil {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, errors.Wrap(err, "redis get")
	}
	if !common.IsHexAddress(val) {
		return common.Address{}, false, errors.Errorf("corrupt binding for identity %s", id)
	}
	return common.HexToAddress(val), true, nil
}

func (s *Store) Set(ctx context.Context, id identity.ID, addr common.Address) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("store is closed")
	}
	if err := s.rdb.Set(ctx, s.key(keyPrefixIdentity+string(id)), addr.Hex(), 0).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("store is closed")
	}
	return s.rdb.Ping(ctx).Err()
}

// Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rdb.Close()
}
