package store

import (
	"context"
	"sync"

	"github.com/ashureev/sshgw/internal/domain"
)

// MemoryConnectionStore is an in-memory ConnectionStore, useful for tests
// and local development where the real connections CRUD surface (out of
// scope for this module) isn't wired up.
type MemoryConnectionStore struct {
	mu    sync.RWMutex
	byKey map[string]domain.CredentialRecord
}

// NewMemoryConnectionStore creates an empty store.
func NewMemoryConnectionStore() *MemoryConnectionStore {
	return &MemoryConnectionStore{byKey: make(map[string]domain.CredentialRecord)}
}

// Put registers a credential record for (userID, connectionID).
func (m *MemoryConnectionStore) Put(userID, connectionID string, rec domain.CredentialRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[userID+"/"+connectionID] = rec
}

// LoadConnection implements ConnectionStore.
func (m *MemoryConnectionStore) LoadConnection(_ context.Context, userID, connectionID string) (domain.CredentialRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byKey[userID+"/"+connectionID]
	if !ok {
		return domain.CredentialRecord{}, ErrConnectionNotFound
	}
	return rec, nil
}
