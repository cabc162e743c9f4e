// Package token holds the access/refresh token pair and the stores that persist it.
package token

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrWrongPassphrase is returned when a sealed token file cannot be opened.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted token file")
	// ErrUnsupportedVersion is returned for sealed files written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported token file version")
)

// Pair is an access token and the refresh token that renews it.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// IsZero reports whether the pair holds no tokens at all.
func (p Pair) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Store persists a Pair between runs.
// Load returns the zero Pair and a nil error when nothing is stored.
type Store interface {
	Load(ctx context.Context) (Pair, error)
	Save(ctx context.Context, p Pair) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the pair in process memory only.
type MemoryStore struct {
	mu   sync.Mutex
	pair Pair
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored pair.
func (s *MemoryStore) Load(ctx context.Context) (Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair, nil
}

// Save replaces the stored pair.
func (s *MemoryStore) Save(ctx context.Context, p Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = p
	return nil
}

// Clear forgets the stored pair.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = Pair{}
	return nil
}
