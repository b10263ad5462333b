// Package sqlstore keeps identity bindings in a MySQL table through gorm.
// The identity column is unique and writes use INSERT ... ON DUPLICATE KEY
// UPDATE, so re-registration replaces the row in a single statement.
package sqlstore

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
)

// Binding is one row of identity_bindings.
type Binding struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Identity  string    `gorm:"column:identity;size:64;not null;uniqueIndex:uk_identity"`
	Address   string    `gorm:"column:address;size:42;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Binding) TableName() string { return "identity_bindings" }

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects with the given DSN. When migrate is true the table is
// created or altered to match Binding.
func Open(dsn string, migrate bool, log *zap.Logger) (*Store, error) {
	return open(mysql.Open(dsn), migrate, log)
}

func open(dialector gorm.Dialector, migrate bool, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	s := New(db, log)
	if migrate {
		if err := db.AutoMigrate(&Binding{}); err != nil {
			_ = s.Close()
			return nil, errors.Wrap(err, "migrate identity_bindings")
		}
	}
	log.Info("sql identity store initialized", zap.Bool("migrated", migrate))
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// upsert builds the replace-on-conflict statement for a binding.
func upsert(db *gorm.DB, b *Binding) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "updated_at"}),
	}).Create(b)
}

func (s *Store) Get(ctx context.Context, id identity.ID) (common.Address, bool, error) {
	var b Binding
	err := s.db.WithContext(ctx).Where("identity = ?", string(id)).Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, errors.Wrap(err, "select binding")
	}
	if !common.IsHexAddress(b.Address) {
		return common.Address{}, false, errors.Errorf("corrupt binding for identity %s", id)
	}
	return common.HexToAddress(b.Address), true, nil
}

func (s *Store) Set(ctx context.Context, id identity.ID, addr common.Address) error {
	b := &Binding{Identity: string(id), Address: addr.Hex(), UpdatedAt: time.Now().UTC()}
	if err := upsert(s.db.WithContext(ctx), b).Error; err != nil {
		return errors.Wrap(err, "upsert binding")
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "sql handle")
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "sql handle")
	}
	return sqlDB.Close()
}
