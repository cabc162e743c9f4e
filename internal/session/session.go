// Package session owns the in-memory token pair and the single-flight refresh.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sodular/sodular-go/internal/metrics"
	"github.com/sodular/sodular-go/internal/token"
)

const refreshKey = "refresh"

// Refresher exchanges a refresh token for a new pair.
type Refresher func(ctx context.Context, refreshToken string) (token.Pair, error)

// Session holds the current token pair.
// It is safe for concurrent use.
type Session struct {
	store   token.Store
	logger  *slog.Logger
	metrics metrics.Recorder

	mu        sync.RWMutex
	pair      token.Pair
	refresher Refresher

	group singleflight.Group
}

// New creates a Session backed by store. A nil store keeps tokens in memory only.
func New(store token.Store, logger *slog.Logger, recorder metrics.Recorder) *Session {
	if store == nil {
		store = token.NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Session{
		store:   store,
		logger:  logger.With("component", "session"),
		metrics: recorder,
	}
}

// SetRefresher installs the function used by Refresh.
func (s *Session) SetRefresher(fn Refresher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresher = fn
}

// Load hydrates the session from its store.
func (s *Session) Load(ctx context.Context) error {
	p, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}
	s.mu.Lock()
	s.pair = p
	s.mu.Unlock()
	return nil
}

// Tokens returns the current pair.
func (s *Session) Tokens() token.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

// AccessToken returns the current access token, or "".
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.AccessToken
}

// Set replaces the pair and persists it. Persistence failures are logged and ignored.
func (s *Session) Set(ctx context.Context, p token.Pair) {
	s.mu.Lock()
	s.pair = p
	s.mu.Unlock()

	if err := s.store.Save(ctx, p); err != nil {
		s.logger.Debug("failed to persist tokens", "error", err)
	}
}

// Clear forgets the pair and removes it from the store. Store failures are ignored.
func (s *Session) Clear(ctx context.Context) {
	s.mu.Lock()
	s.pair = token.Pair{}
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		s.logger.Debug("failed to clear stored tokens", "error", err)
	}
}

// Refresh obtains a fresh access token after a request carrying failed got a 401.
//
// Concurrent callers share a single refresh call. When the session already holds
// an access token other than failed, another caller has refreshed in the meantime
// and that token is returned without a network call. On failure the pair is cleared.
func (s *Session) Refresh(ctx context.Context, failed string) (string, error) {
	if cur := s.AccessToken(); cur != "" && cur != failed {
		return cur, nil
	}

	v, err, _ := s.group.Do(refreshKey, func() (any, error) {
		if cur := s.AccessToken(); cur != "" && cur != failed {
			return cur, nil
		}
		return s.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ForceRefresh refreshes the pair whatever the state of the access token.
//
// It shares the refresh group with Refresh: a call made while a refresh is in
// flight waits for it, and a call that finds the access token already replaced
// since it started returns the new pair without another network call.
func (s *Session) ForceRefresh(ctx context.Context) (token.Pair, error) {
	seen := s.AccessToken()
	_, err, _ := s.group.Do(refreshKey, func() (any, error) {
		if cur := s.AccessToken(); cur != "" && cur != seen {
			return cur, nil
		}
		return s.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return token.Pair{}, err
	}
	return s.Tokens(), nil
}

func (s *Session) refresh(ctx context.Context) (string, error) {
	s.mu.RLock()
	refreshToken := s.pair.RefreshToken
	fn := s.refresher
	s.mu.RUnlock()

	if fn == nil {
		return "", ErrNoRefresher
	}
	if refreshToken == "" {
		s.Clear(ctx)
		return "", ErrNoRefreshToken
	}

	pair, err := fn(ctx, refreshToken)
	if err == nil && pair.AccessToken == "" {
		err = fmt.Errorf("empty access token in refresh response")
	}
	if err != nil {
		s.metrics.IncTokenRefresh(metrics.RefreshFailed)
		s.logger.Warn("token refresh failed, clearing session", "error", err)
		s.Clear(ctx)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	s.metrics.IncTokenRefresh(metrics.RefreshSuccess)
	s.logger.Debug("token refreshed")
	s.Set(ctx, pair)
	return pair.AccessToken, nil
}
