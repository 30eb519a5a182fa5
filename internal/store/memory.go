package store

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

const backendMemory = "memory"

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	GetStoreMetrics().Init(backendMemory)
	return &MemoryStore{configs: make(map[string]string)}
}

// Get returns the text stored under id.
func (m *MemoryStore) Get(ctx context.Context, id string) (text string, err error) {
	_, op := startOperation(ctx, backendMemory, "get", attribute.String("store.id", id))
	defer func() { op.finish(err) }()

	if !ValidID(id) {
		return "", ErrNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	text, ok := m.configs[id]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

// Put stores text unless its id is already present.
func (m *MemoryStore) Put(ctx context.Context, text string) (id string, err error) {
	id = ContentID(text)
	_, op := startOperation(ctx, backendMemory, "put", attribute.String("store.id", id))
	defer func() { op.finish(err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.configs[id]; !exists {
		m.configs[id] = text
	}
	return id, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored configurations.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.configs)
}
