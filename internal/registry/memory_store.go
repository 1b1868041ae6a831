package registry

import (
	"sync"

	"securesign/pkg/domain"
)

// MemoryStore keeps the record set in-process. Used by tests and by the
// standalone demo mode.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]domain.Document
	orders []string
	keys   map[string]domain.UserKeyInfo
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]domain.Document),
		keys: make(map[string]domain.UserKeyInfo),
	}
}

// SaveDocument stores or replaces a record and tracks insertion order.
func (m *MemoryStore) SaveDocument(d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[d.ID]; !exists {
		m.orders = append(m.orders, d.ID)
	}
	m.docs[d.ID] = d
	return nil
}

// GetDocument retrieves a record by ID.
func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	return d, ok, nil
}

// ListDocuments returns records in insertion order.
func (m *MemoryStore) ListDocuments() ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0, len(m.orders))
	for _, id := range m.orders {
		if d, ok := m.docs[id]; ok {
			res = append(res, d)
		}
	}
	return res, nil
}

// ListDocumentsByOwner returns records filtered by owner.
func (m *MemoryStore) ListDocumentsByOwner(ownerID string) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0, len(m.orders))
	for _, id := range m.orders {
		if d, ok := m.docs[id]; ok && d.OwnerID == ownerID {
			res = append(res, d)
		}
	}
	return res, nil
}

// DeleteDocument removes a record.
func (m *MemoryStore) DeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	filtered := m.orders[:0]
	for _, item := range m.orders {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.orders = filtered
	return nil
}

// SaveKeyInfo stores or replaces a user's key info.
func (m *MemoryStore) SaveKeyInfo(info domain.UserKeyInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[info.UserID] = info
	return nil
}

// GetKeyInfo retrieves key info for a user.
func (m *MemoryStore) GetKeyInfo(userID string) (domain.UserKeyInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.keys[userID]
	return info, ok, nil
}
