package cooldown

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, identity string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[identity]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *MemoryStore) Put(_ context.Context, record Record, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Identity] = record
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, identity)
	return nil
}
