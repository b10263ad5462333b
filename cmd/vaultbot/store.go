package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/0gfoundation/0g-vault-2fa/internal/config"
	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
	"github.com/0gfoundation/0g-vault-2fa/internal/identity/badgerstore"
	"github.com/0gfoundation/0g-vault-2fa/internal/identity/redisstore"
	"github.com/0gfoundation/0g-vault-2fa/internal/identity/sqlstore"
)

// openStore builds the identity store selected by STORE_BACKEND.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (identity.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory identity store; bindings are lost on restart")
		return identity.NewMemoryStore(), nil
	case config.BackendBadger:
		return badgerstore.Open(cfg.Store.BadgerPath, log)
	case config.BackendRedis:
		return redisstore.Open(ctx, redisstore.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, log)
	case config.BackendMySQL:
		return sqlstore.Open(cfg.Store.MySQLDSN, cfg.Store.MySQLMigrate, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
