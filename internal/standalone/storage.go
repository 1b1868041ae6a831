package standalone

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"securesign/internal/lifecycle"
)

// Storage is the in-process document storage capability for standalone
// mode. It assigns identifiers and computes content hashes locally;
// nothing random beyond the ID, so behavior is reproducible in tests.
type Storage struct {
	mu     sync.Mutex
	sigs   map[string][]lifecycle.SignatureRecord
	shares map[string][]string
}

// NewStorage builds the provider.
func NewStorage() *Storage {
	return &Storage{
		sigs:   make(map[string][]lifecycle.SignatureRecord),
		shares: make(map[string][]string),
	}
}

// Upload hashes the content and assigns a fresh ID.
func (s *Storage) Upload(title, userID, securityLevel, filename string, r io.Reader) (lifecycle.StoredDocument, error) {
	h := sha256.New()
	size, err := io.Copy(h, r)
	if err != nil {
		return lifecycle.StoredDocument{}, fmt.Errorf("hash upload: %w", err)
	}
	digest := hex.EncodeToString(h.Sum(nil))
	return lifecycle.StoredDocument{
		ID:          uuid.NewString(),
		Hash:        digest,
		ContentHash: digest,
		FileSize:    size,
		FileType:    strings.TrimPrefix(filepath.Ext(filename), "."),
	}, nil
}

// RecordSignature keeps the signature record in memory.
func (s *Storage) RecordSignature(documentID string, rec lifecycle.SignatureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sigs[documentID] = append(s.sigs[documentID], rec)
	return nil
}

// Share keeps the grant in memory.
func (s *Storage) Share(documentID, sharedBy, email, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[documentID] = append(s.shares[documentID], email)
	return nil
}
