// Package identity binds messaging-platform identities to account addresses.
//
// A Directory validates and normalizes addresses and delegates durable
// storage to a Store. Each identity maps to at most one address; a second
// Upsert for the same identity replaces the first.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrNotFound       = errors.New("identity not registered")
	ErrStorageFailure = errors.New("identity store unavailable")
	ErrEmptyIdentity  = errors.New("empty identity")
	ErrIdentityLength = errors.New("identity too long")
)

// MaxIDLen is the longest identity any store must hold; the SQL column is
// sized to match.
const MaxIDLen = 64

// ID is the opaque handle the transport assigns to a user.
type ID string

func (id ID) validate() error {
	switch {
	case id == "":
		return ErrEmptyIdentity
	case len(id) > MaxIDLen:
		return ErrIdentityLength
	}
	return nil
}

// Store is the persistence capability behind a Directory.
// Implementations must replace a binding atomically: a concurrent Get
// observes either the old or the new address, never a partial write.
type Store interface {
	// Get returns the bound address and true, or false if none exists.
	Get(ctx context.Context, id ID) (common.Address, bool, error)
	// Set inserts or replaces the binding for id.
	Set(ctx context.Context, id ID, addr common.Address) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type Directory struct {
	store Store
	log   *zap.Logger
}

func NewDirectory(store Store, log *zap.Logger) *Directory {
	return &Directory{store: store, log: log}
}

// Upsert validates rawAddr and binds it to id, replacing any prior binding.
// It returns the normalized address that was stored.
func (d *Directory) Upsert(ctx context.Context, id ID, rawAddr string) (common.Address, error) {
	if err := id.validate(); err != nil {
		return common.Address{}, err
	}
	addr, err := ParseAddress(rawAddr)
	if err != nil {
		return common.Address{}, err
	}
	if err := d.store.Set(ctx, id, addr); err != nil {
		d.log.Error("identity store write failed", zap.String("identity", string(id)), zap.Error(err))
		return common.Address{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	d.log.Info("identity registered",
		zap.String("identity", string(id)),
		zap.String("address", addr.Hex()),
	)
	return addr, nil
}

// Lookup returns the address currently bound to id, or ErrNotFound.
func (d *Directory) Lookup(ctx context.Context, id ID) (common.Address, error) {
	if err := id.validate(); err != nil {
		return common.Address{}, err
	}
	addr, ok, err := d.store.Get(ctx, id)
	if err != nil {
		d.log.Error("identity store read failed", zap.String("identity", string(id)), zap.Error(err))
		return common.Address{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if !ok {
		return common.Address{}, ErrNotFound
	}
	return addr, nil
}

// HealthCheck reports whether the underlying store is reachable.
func (d *Directory) HealthCheck(ctx context.Context) error {
	return d.store.HealthCheck(ctx)
}
