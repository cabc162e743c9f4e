package client

import (
	"context"
	"errors"
	"testing"

	"github.com/sodular/sodular-go/internal/model"
)

func TestRefs_CRUD(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, WithDatabase("db-1"))
	ctx := context.Background()

	table, err := c.Tables.Create(ctx, model.TableData{Name: "posts"})
	if err != nil {
		t.Fatalf("Tables.Create() error = %v", err)
	}

	created, err := c.Refs.Create(ctx, table.UID, map[string]any{"title": "hello", "views": 1})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.UID == "" || created.CreatedAt == 0 {
		t.Fatalf("Create() = %+v, want uid and createdAt", created)
	}

	patched, err := c.Refs.Patch(ctx, table.UID, created.UID, map[string]any{"views": 2})
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if patched.Data["title"] != "hello" || patched.Data["views"] != float64(2) {
		t.Errorf("Patch() data = %v", patched.Data)
	}

	replaced, err := c.Refs.Replace(ctx, table.UID, created.UID, map[string]any{"title": "bye"})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if _, ok := replaced.Data["views"]; ok {
		t.Errorf("Replace() kept old field: %v", replaced.Data)
	}

	got, err := c.Refs.Get(ctx, table.UID, created.UID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Data["title"] != "bye" {
		t.Errorf("Get() title = %v", got.Data["title"])
	}

	if err := c.Refs.Delete(ctx, table.UID, created.UID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, err = c.Refs.Get(ctx, table.UID, created.UID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestRefs_ListFilterAndPaging(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, WithDatabase("db-1"))
	ctx := context.Background()
	const table = "tbl-1"

	for i, kind := range []string{"a", "b", "a", "a", "b"} {
		if _, err := c.Refs.Create(ctx, table, map[string]any{"kind": kind, "n": i}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		query     model.Query
		wantLen   int
		wantTotal int
	}{
		{"all", model.Query{}, 5, 5},
		{"filter", model.Query{Filter: map[string]any{"data.kind": "a"}}, 3, 3},
		{"limit", model.Query{Limit: 2}, 2, 5},
		{"skip", model.Query{Skip: 4}, 1, 5},
		{"filter and page", model.Query{Filter: map[string]any{"data.kind": "b"}, Limit: 1, Skip: 1}, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Refs.List(ctx, table, tt.query)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(res.List) != tt.wantLen {
				t.Errorf("len(List) = %d, want %d", len(res.List), tt.wantLen)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
		})
	}

	desc, err := c.Refs.List(ctx, table, model.Query{Sort: map[string]int{"createdAt": model.SortDesc}, Limit: 1})
	if err != nil {
		t.Fatalf("List(desc) error = %v", err)
	}
	if desc.List[0].Data["n"] != float64(4) {
		t.Errorf("newest n = %v, want 4", desc.List[0].Data["n"])
	}
}

func TestRefs_RequireTable(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	if _, err := c.Refs.Create(context.Background(), "", map[string]any{}); !errors.Is(err, errTableRequired) {
		t.Errorf("Create() error = %v, want errTableRequired", err)
	}
	if _, err := c.Refs.List(context.Background(), "", model.Query{}); !errors.Is(err, errTableRequired) {
		t.Errorf("List() error = %v, want errTableRequired", err)
	}
}

func TestRefs_FindOneNotFound(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	_, err := c.Refs.FindOne(context.Background(), "tbl", model.Query{Filter: map[string]any{"data.kind": "none"}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FindOne() error = %v, want ErrNotFound", err)
	}
}

func TestList_InvalidQuery(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t)
	_, err := c.Databases.List(context.Background(), model.Query{Limit: -1})
	if err == nil {
		t.Fatal("expected error for negative limit")
	}
	if srv.Unauthorized() != 0 {
		t.Errorf("invalid query should not reach the server")
	}
}

func TestStorageAndBuckets(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, WithDatabase("db-1"))
	ctx := context.Background()

	st, err := c.Storages.Create(ctx, model.StorageData{Name: "media"})
	if err != nil {
		t.Fatalf("Storages.Create() error = %v", err)
	}
	b, err := c.Buckets.Create(ctx, st.UID, model.BucketData{Name: "avatars"})
	if err != nil {
		t.Fatalf("Buckets.Create() error = %v", err)
	}

	list, err := c.Buckets.List(ctx, st.UID, model.Query{})
	if err != nil {
		t.Fatalf("Buckets.List() error = %v", err)
	}
	if list.Total != 1 || list.List[0].UID != b.UID {
		t.Errorf("Buckets.List() = %+v", list)
	}

	if _, err := c.Buckets.List(ctx, "", model.Query{}); !errors.Is(err, errStorageRequired) {
		t.Errorf("Buckets.List() without storage error = %v", err)
	}

	if _, err := c.Storages.Patch(ctx, st.UID, map[string]any{"description": "user uploads"}); err != nil {
		t.Fatalf("Storages.Patch() error = %v", err)
	}
	got, err := c.Storages.Get(ctx, st.UID)
	if err != nil {
		t.Fatalf("Storages.Get() error = %v", err)
	}
	if got.Data.Description != "user uploads" {
		t.Errorf("Description = %q", got.Data.Description)
	}
}
