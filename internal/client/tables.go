package client

import (
	"context"

	"github.com/sodular/sodular-go/internal/model"
)

// TablesService manages tables in the client's database.
type TablesService struct {
	res resource[model.TableData]
}

// Create creates a table.
func (s *TablesService) Create(ctx context.Context, data model.TableData) (*model.Table, error) {
	return s.res.create(ctx, nil, data)
}

// Get fetches a table by uid.
func (s *TablesService) Get(ctx context.Context, uid string) (*model.Table, error) {
	return s.res.get(ctx, nil, uid)
}

// FindOne returns the first table matching q.
func (s *TablesService) FindOne(ctx context.Context, q model.Query) (*model.Table, error) {
	return s.res.findOne(ctx, nil, q)
}

// ByName returns the table called name.
func (s *TablesService) ByName(ctx context.Context, name string) (*model.Table, error) {
	return s.res.findOne(ctx, nil, model.Query{Filter: map[string]any{"data.name": name}})
}

// List lists tables.
func (s *TablesService) List(ctx context.Context, q model.Query) (*model.List[model.Table], error) {
	return s.res.list(ctx, nil, q)
}

// Patch updates fields of a table.
func (s *TablesService) Patch(ctx context.Context, uid string, changes map[string]any) (*model.Table, error) {
	return s.res.patch(ctx, nil, uid, changes)
}

// Delete removes a table.
func (s *TablesService) Delete(ctx context.Context, uid string) error {
	return s.res.delete(ctx, nil, uid)
}
