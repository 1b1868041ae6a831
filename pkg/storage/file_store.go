package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore saves payloads to disk under a base directory, one directory
// per key.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("payload base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create payload dir: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Put writes the payload under a key-specific folder.
func (f *FileStore) Put(_ context.Context, key, filename, _ string, r io.Reader, _ int64) error {
	targetDir := filepath.Join(f.basePath, safeName(key))
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("create payload key dir: %w", err)
	}
	target := filepath.Join(targetDir, safeName(filename))

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create payload file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write payload file: %w", err)
	}
	return nil
}

// Get reads the payload bytes stored for a key.
func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	targetDir := filepath.Join(f.basePath, safeName(key))
	entries, err := os.ReadDir(targetDir)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read payload dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(targetDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		return data, nil
	}
	return nil, ErrNotFound
}

// Delete removes all files for a key.
func (f *FileStore) Delete(_ context.Context, key string) error {
	targetDir := filepath.Join(f.basePath, safeName(key))
	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(targetDir)
}

func safeName(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.TrimSpace(name)
	if name == "" {
		return "payload"
	}
	return name
}
