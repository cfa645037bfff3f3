package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store is the durable home of the chain.
type Store interface {
	// Load returns the persisted chain in index order, or (nil, nil) when
	// nothing has been persisted yet.
	Load(ctx context.Context) ([]Block, error)

	// Save durably replaces the persisted chain with chain. A failed Save
	// must leave the previously persisted chain intact.
	Save(ctx context.Context, chain []Block) error
}

// FileStore persists the chain as a single JSON array. Every Save writes a
// temporary file next to the target, syncs it and renames it into place, so a
// crash leaves either the old or the new complete file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the chain file location.
func (s *FileStore) Path() string { return s.path }

// Load implements Store.
func (s *FileStore) Load(_ context.Context) ([]Block, error) {
	stat, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat chain file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("chain path %s is a directory", s.path)
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}

	var chain []Block
	if err := json.Unmarshal(raw, &chain); err != nil {
		return nil, fmt.Errorf("parse chain file: %w", err)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("chain file %s holds no blocks", s.path)
	}
	return chain, nil
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, chain []Block) error {
	data, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chain: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chain dir: %w", err)
	}

	tmpPath := s.path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temporary chain file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temporary chain file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temporary chain file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temporary chain file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename chain file into place: %w", err)
	}

	// Make the rename itself durable.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
