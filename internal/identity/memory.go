package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var errStoreClosed = errors.New("store is closed")

// MemoryStore is a process-local Store for tests and single-node dev runs.
type MemoryStore struct {
	mu       sync.RWMutex
	bindings map[ID]common.Address
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bindings: make(map[ID]common.Address)}
}

func (m *MemoryStore) Get(_ context.Context, id ID) (common.Address, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return common.Address{}, false, errStoreClosed
	}
	addr, ok := m.bindings[id]
	return addr, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, id ID, addr common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errStoreClosed
	}
	m.bindings[id] = addr
	return nil
}

func (m *MemoryStore) HealthCheck(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errStoreClosed
	}
	return nil
}

// Close is idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
