package client

import (
	"context"

	"github.com/sodular/sodular-go/internal/model"
)

// DatabasesService manages databases.
type DatabasesService struct {
	res resource[model.DatabaseData]
}

// Create creates a database.
func (s *DatabasesService) Create(ctx context.Context, data model.DatabaseData) (*model.Database, error) {
	return s.res.create(ctx, nil, data)
}

// Get fetches a database by uid.
func (s *DatabasesService) Get(ctx context.Context, uid string) (*model.Database, error) {
	return s.res.get(ctx, nil, uid)
}

// FindOne returns the first database matching q.
func (s *DatabasesService) FindOne(ctx context.Context, q model.Query) (*model.Database, error) {
	return s.res.findOne(ctx, nil, q)
}

// List lists databases.
func (s *DatabasesService) List(ctx context.Context, q model.Query) (*model.List[model.Database], error) {
	return s.res.list(ctx, nil, q)
}

// Patch updates fields of a database.
func (s *DatabasesService) Patch(ctx context.Context, uid string, changes map[string]any) (*model.Database, error) {
	return s.res.patch(ctx, nil, uid, changes)
}

// Delete removes a database.
func (s *DatabasesService) Delete(ctx context.Context, uid string) error {
	return s.res.delete(ctx, nil, uid)
}
