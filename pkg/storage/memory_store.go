package storage

import (
	"context"
	"io"
	"sync"
)

// MemoryStore keeps payloads in process memory. Nothing survives a
// restart, which is exactly the behavior wanted when no durable payload
// backend is configured: operations needing the bytes after a restart
// get ErrNotFound and ask for a re-upload.
type MemoryStore struct {
	mu       sync.RWMutex
	payloads map[string][]byte
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payloads: make(map[string][]byte)}
}

// Put keeps a copy of the bytes under key.
func (m *MemoryStore) Put(_ context.Context, key, _, _ string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[key] = data
	return nil
}

// Get returns the bytes under key, or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.payloads[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Delete removes the bytes under key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.payloads, key)
	return nil
}
