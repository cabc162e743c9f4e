package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the pair as a JSON file, sealed when a passphrase is set.
type FileStore struct {
	path       string
	passphrase string
	kdf        kdfParams
	mu         sync.Mutex
}

// NewFileStore returns a store writing to path.
// An empty passphrase stores the pair in plain JSON (still mode 0600).
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase, kdf: defaultKDF}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the pair. A missing file yields the zero pair.
func (s *FileStore) Load(ctx context.Context) (Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Pair{}, nil
		}
		return Pair{}, fmt.Errorf("read token file: %w", err)
	}

	if s.passphrase != "" {
		if data, err = open(s.passphrase, data); err != nil {
			return Pair{}, err
		}
	}

	var p Pair
	if err := json.Unmarshal(data, &p); err != nil {
		return Pair{}, fmt.Errorf("decode token file: %w", err)
	}
	return p, nil
}

// Save writes the pair atomically.
func (s *FileStore) Save(ctx context.Context, p Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	if s.passphrase != "" {
		if data, err = seal(s.passphrase, data, s.kdf); err != nil {
			return fmt.Errorf("seal tokens: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokens-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

// Clear removes the file. Removing a missing file is not an error.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
