// Package file keeps session credentials in a single JSON record on disk,
// optionally sealed under a passphrase.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/store"
	"github.com/aussiebroadwan/gigboard/pkg/cryptox"
)

type Store struct {
	mu         sync.Mutex
	path       string
	passphrase string
}

// NewStore returns a store writing to path. With an empty passphrase the
// record is written in the clear (still 0600).
func NewStore(path, passphrase string) (*Store, error) {
	if path == "" {
		return nil, errors.New("file store: empty path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("file store: create directory: %w", err)
	}

	return &Store{path: path, passphrase: passphrase}, nil
}

// Save writes the record to a temp file next to path and renames it into
// place, so readers see either the old triple or the new one.
func (s *Store) Save(ctx context.Context, creds store.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(creds.Entries())
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}

	if s.passphrase != "" {
		data, err = cryptox.Seal(s.passphrase, data)
		if err != nil {
			return fmt.Errorf("file store: seal: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }() // no-op once renamed

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: close: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("file store: rename: %w", err)
	}

	return nil
}

func (s *Store) Load(ctx context.Context) (store.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return store.Credentials{}, store.ErrNotFound
	}
	if err != nil {
		return store.Credentials{}, fmt.Errorf("file store: read: %w", err)
	}

	if s.passphrase != "" {
		data, err = cryptox.Open(s.passphrase, data)
		if err != nil {
			return store.Credentials{}, fmt.Errorf("file store: open: %w", err)
		}
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return store.Credentials{}, fmt.Errorf("file store: decode: %w", err)
	}

	return store.FromEntries(entries)
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file store: remove: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }
