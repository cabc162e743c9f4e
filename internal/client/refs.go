package client

import (
	"context"
	"errors"

	"github.com/sodular/sodular-go/internal/model"
)

var errTableRequired = errors.New("ref: table uid is required")

// RefsService manages documents inside a table. Every call names the table.
type RefsService struct {
	res resource[map[string]any]
}

// Create stores a new document in table.
func (s *RefsService) Create(ctx context.Context, table string, data map[string]any) (*model.Ref, error) {
	if table == "" {
		return nil, errTableRequired
	}
	return s.res.create(ctx, scope("table_id", table), data)
}

// Get fetches one document.
func (s *RefsService) Get(ctx context.Context, table, uid string) (*model.Ref, error) {
	if table == "" {
		return nil, errTableRequired
	}
	return s.res.get(ctx, scope("table_id", table), uid)
}

// FindOne returns the first document in table matching q.
func (s *RefsService) FindOne(ctx context.Context, table string, q model.Query) (*model.Ref, error) {
	if table == "" {
		return nil, errTableRequired
	}
	return s.res.findOne(ctx, scope("table_id", table), q)
}

// List lists documents in table.
func (s *RefsService) List(ctx context.Context, table string, q model.Query) (*model.List[model.Ref], error) {
	if table == "" {
		return nil, errTableRequired
	}
	return s.res.list(ctx, scope("table_id", table), q)
}

// Patch merges changes into a document.
func (s *RefsService) Patch(ctx context.Context, table, uid string, changes map[string]any) (*model.Ref, error) {
	if table == "" {
		return nil, errTableRequired
	}
	return s.res.patch(ctx, scope("table_id", table), uid, changes)
}

// Replace overwrites a document's data.
func (s *RefsService) Replace(ctx context.Context, table, uid string, data map[string]any) (*model.Ref, error) {
	if table == "" {
		return nil, errTableRequired
	}
	return s.res.replace(ctx, scope("table_id", table), uid, data)
}

// Delete removes a document.
func (s *RefsService) Delete(ctx context.Context, table, uid string) error {
	if table == "" {
		return errTableRequired
	}
	return s.res.delete(ctx, scope("table_id", table), uid)
}
