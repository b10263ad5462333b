// Package badgerstore is the default durable identity store: an embedded
// Badger database with SyncWrites enabled. Each binding is written in its own
// transaction, so a replacement is all-or-nothing.
package badgerstore

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
)

const (
	keyPrefixIdentity    = "identity:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

type Store struct {
	db       *badgerdb.DB
	log      *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// Open opens (or creates) the database at dataPath and starts value-log GC.
func Open(dataPath string, log *zap.Logger) (*Store, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, errors.Wrap(err, "resolve data path")
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &zapLogger{log: log}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open badger database at %s", absPath)
	}

	s := &Store{db: db, log: log}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "initialize schema")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.gcCancel = cancel
	s.gcWg.Add(1)
	go s.runGC(ctx)

	log.Info("badger identity store initialized", zap.String("path", absPath))
	return s, nil
}

func (s *Store) initSchema() error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return errors.Wrap(err, "read schema version")
		}
		var existing string
		if err := item.Value(func(val []byte) error {
			existing = string(val)
			return nil
		}); err != nil {
			return errors.Wrap(err, "read schema version value")
		}
		if existing != currentSchemaVersion {
			return errors.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
		}
		return nil
	})
}

func (s *Store) runGC(ctx context.Context) {
	defer s.gcWg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.db.RunValueLogGC(gcDiscardRatio); err != nil && err != badgerdb.ErrNoRewrite {
				s.log.Warn("badger GC error", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func identityKey(id identity.ID) []byte {
	return []byte(keyPrefixIdentity + string(id))
}

func (s *Store) Get(_ context.Context, id identity.ID) (common.Address, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return common.Address{}, false, errors.New("store is closed")
	}

	var (
		addr  common.Address
		found bool
	)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(identityKey(id))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != common.AddressLength {
				return errors.Errorf("corrupt binding for identity %s", id)
			}
			addr = common.BytesToAddress(val)
			found = true
			return nil
		})
	})
	if err != nil {
		return common.Address{}, false, errors.Wrap(err, "badger get")
	}
	return addr, found, nil
}

func (s *Store) Set(_ context.Context, id identity.ID, addr common.Address) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("store is closed")
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(identityKey(id), addr.Bytes())
	})
	return errors.Wrap(err, "badger set")
}

func (s *Store) HealthCheck(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("store is closed")
	}
	return s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return errors.New("schema version not found - database may be corrupted")
		}
		return err
	})
}

// Close stops GC and closes the database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.gcCancel != nil {
		s.gcCancel()
	}
	s.gcWg.Wait()

	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "close badger database")
	}
	s.log.Info("badger identity store closed")
	return nil
}
