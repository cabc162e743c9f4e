//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/sodular/sodular-go/internal/model"
	"github.com/sodular/sodular-go/internal/testutil"
	"github.com/sodular/sodular-go/internal/token"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, redisURL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTokenStore_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	store := c.TokenStore(testutil.UniqueID("profile"))

	empty, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on empty error = %v", err)
	}
	if !empty.IsZero() {
		t.Errorf("Load() on empty = %+v", empty)
	}

	want := token.Pair{AccessToken: "at", RefreshToken: "rt"}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	got, _ = store.Load(ctx)
	if !got.IsZero() {
		t.Errorf("Load() after Clear = %+v", got)
	}
}

func TestPublishEvent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for _, name := range []string{model.EventCreated, model.EventDeleted} {
		if _, err := c.PublishEvent(ctx, model.Event{Name: name, DatabaseID: "db", TableID: "t"}); err != nil {
			t.Fatalf("PublishEvent(%s) error = %v", name, err)
		}
	}

	events, err := c.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Name != model.EventDeleted {
		t.Errorf("newest event = %q, want deleted", events[0].Name)
	}
}

func TestNewFromClient_SharesConnection(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	profile := testutil.UniqueID("profile")

	want := token.Pair{AccessToken: "shared-at", RefreshToken: "shared-rt"}
	if err := c.TokenStore(profile).Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	wrapped := NewFromClient(c.Client())
	if err := wrapped.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	got, err := wrapped.TokenStore(profile).Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}
