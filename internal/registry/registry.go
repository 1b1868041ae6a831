package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"securesign/pkg/domain"
)

// ErrDocumentNotFound is returned for lookups and updates on unknown IDs.
var ErrDocumentNotFound = errors.New("document not found")

// Registry coordinates access to the document store. All mutations go
// through Update, which re-reads the latest record before applying the
// mutation so that concurrent updates never overwrite each other with a
// stale copy.
type Registry struct {
	mu    sync.Mutex
	store Store
}

// New wraps a backend store.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// Add inserts a new document. An empty ID is filled in.
func (r *Registry) Add(doc domain.Document) (domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.ID == "" {
		doc.ID = NewID()
	}
	if _, ok, err := r.store.GetDocument(doc.ID); err != nil {
		return domain.Document{}, err
	} else if ok {
		return domain.Document{}, fmt.Errorf("document %s already exists", doc.ID)
	}
	if err := r.store.SaveDocument(doc); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// Find returns a document by ID.
func (r *Registry) Find(id string) (domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok, err := r.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, err
	}
	if !ok {
		return domain.Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// List returns all documents in insertion order.
func (r *Registry) List() ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ListDocuments()
}

// ListByOwner returns all documents owned by a user.
func (r *Registry) ListByOwner(ownerID string) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ListDocumentsByOwner(ownerID)
}

// Update applies mutate to the current stored record and saves the
// result. The record passed to mutate is always freshly loaded, so
// callers holding an older copy cannot clobber intervening changes.
func (r *Registry) Update(id string, mutate func(*domain.Document) error) (domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok, err := r.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, err
	}
	if !ok {
		return domain.Document{}, ErrDocumentNotFound
	}
	if err := mutate(&doc); err != nil {
		return domain.Document{}, err
	}
	if err := r.store.SaveDocument(doc); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// Delete removes a document.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.DeleteDocument(id)
}

// SaveKeyInfo records that a user has signing keys.
func (r *Registry) SaveKeyInfo(info domain.UserKeyInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.SaveKeyInfo(info)
}

// KeyInfo returns key info for a user; ok is false when none exists.
func (r *Registry) KeyInfo(userID string) (domain.UserKeyInfo, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.GetKeyInfo(userID)
}
