package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sodular/sodular-go/internal/token"
)

// tokenKeyPrefix is the Redis key prefix for stored token pairs.
const tokenKeyPrefix = "sodular:tokens:"

func tokenKey(profile string) string {
	if profile == "" {
		profile = "default"
	}
	return tokenKeyPrefix + profile
}

// TokenStore keeps one profile's token pair in a Redis string.
type TokenStore struct {
	client *redis.Client
	key    string
}

// TokenStore returns the token.Store for profile.
func (c *Cache) TokenStore(profile string) *TokenStore {
	return &TokenStore{client: c.client, key: tokenKey(profile)}
}

// Load returns the stored pair, or a zero pair if none is stored.
func (s *TokenStore) Load(ctx context.Context) (token.Pair, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return token.Pair{}, nil
	}
	if err != nil {
		return token.Pair{}, fmt.Errorf("get tokens: %w", err)
	}

	var p token.Pair
	if err := json.Unmarshal(data, &p); err != nil {
		return token.Pair{}, fmt.Errorf("decode tokens: %w", err)
	}
	return p, nil
}

// Save stores p without expiry; the API decides token lifetime.
func (s *TokenStore) Save(ctx context.Context, p token.Pair) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set tokens: %w", err)
	}
	return nil
}

// Clear deletes the stored pair.
func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	return nil
}

var _ token.Store = (*TokenStore)(nil)
