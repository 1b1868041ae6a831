package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"securesign/pkg/domain"
)

const documentsFile = "documents.json"

// FileStore persists the record set as a JSON snapshot on disk, the
// server-side analog of the browser's local key-value store: the whole
// set is rewritten on every mutation and reloaded at startup. Two
// processes pointed at the same directory clobber each other silently.
type FileStore struct {
	mu  sync.RWMutex
	dir string
	mem *MemoryStore
}

// NewFileStore loads any existing snapshot from dir.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("registry state dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	fs := &FileStore{dir: dir, mem: NewMemoryStore()}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(filepath.Join(f.dir, documentsFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registry snapshot: %w", err)
	}
	var docs []domain.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("parse registry snapshot: %w", err)
	}
	for _, d := range docs {
		_ = f.mem.SaveDocument(d)
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("read state dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "user-keys-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			continue
		}
		var info domain.UserKeyInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			continue
		}
		_ = f.mem.SaveKeyInfo(info)
	}
	return nil
}

func (f *FileStore) persistDocuments() error {
	docs, _ := f.mem.ListDocuments()
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("serialize registry snapshot: %w", err)
	}
	tmp := filepath.Join(f.dir, documentsFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry snapshot: %w", err)
	}
	return os.Rename(tmp, filepath.Join(f.dir, documentsFile))
}

// SaveDocument replaces the record and rewrites the snapshot.
func (f *FileStore) SaveDocument(d domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mem.SaveDocument(d); err != nil {
		return err
	}
	return f.persistDocuments()
}

// GetDocument retrieves a record by ID.
func (f *FileStore) GetDocument(id string) (domain.Document, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mem.GetDocument(id)
}

// ListDocuments returns records in insertion order.
func (f *FileStore) ListDocuments() ([]domain.Document, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mem.ListDocuments()
}

// ListDocumentsByOwner returns records filtered by owner.
func (f *FileStore) ListDocumentsByOwner(ownerID string) ([]domain.Document, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mem.ListDocumentsByOwner(ownerID)
}

// DeleteDocument removes a record and rewrites the snapshot.
func (f *FileStore) DeleteDocument(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mem.DeleteDocument(id); err != nil {
		return err
	}
	return f.persistDocuments()
}

// SaveKeyInfo writes the per-user key info file.
func (f *FileStore) SaveKeyInfo(info domain.UserKeyInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mem.SaveKeyInfo(info); err != nil {
		return err
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("serialize key info: %w", err)
	}
	name := fmt.Sprintf("user-keys-%s.json", sanitize(info.UserID))
	if err := os.WriteFile(filepath.Join(f.dir, name), data, 0o600); err != nil {
		return fmt.Errorf("write key info: %w", err)
	}
	return nil
}

// GetKeyInfo retrieves key info for a user.
func (f *FileStore) GetKeyInfo(userID string) (domain.UserKeyInfo, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mem.GetKeyInfo(userID)
}

func sanitize(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	if name == "" || name == "." {
		return "unknown"
	}
	return name
}
