package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEmpty is returned by Load when no state has been saved yet.
var ErrEmpty = errors.New("portfolio: no saved state")

// Store persists the current State. Save must be atomic with respect to a
// crash: a later Load sees either the old state or the new one, never a mix.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// FileStore keeps the state as a JSON document on disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load(ctx context.Context) (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, ErrEmpty
		}
		return State{}, fmt.Errorf("read portfolio state: %w", err)
	}

	return Unmarshal(data)
}

// Save writes to a temp file in the same directory, syncs it, then renames it
// over the target.
func (f *FileStore) Save(ctx context.Context, s State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Marshal(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		cleanup()
		return fmt.Errorf("rename portfolio state: %w", err)
	}

	// Persist the rename itself. Not every platform lets a directory be synced.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

// Marshal encodes s in the document format every store uses.
func Marshal(s State) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal portfolio state: %w", err)
	}
	return data, nil
}

func Unmarshal(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("decode portfolio state: %w", err)
	}
	if s.Positions == nil {
		s.Positions = make(map[string]*Position)
	}
	return s, nil
}
