package client

import (
	"context"
	"errors"

	"github.com/sodular/sodular-go/internal/model"
)

// StoragesService manages storages.
type StoragesService struct {
	res resource[model.StorageData]
}

// Create creates a storage.
func (s *StoragesService) Create(ctx context.Context, data model.StorageData) (*model.Storage, error) {
	return s.res.create(ctx, nil, data)
}

// Get fetches a storage.
func (s *StoragesService) Get(ctx context.Context, uid string) (*model.Storage, error) {
	return s.res.get(ctx, nil, uid)
}

// List lists storages.
func (s *StoragesService) List(ctx context.Context, q model.Query) (*model.List[model.Storage], error) {
	return s.res.list(ctx, nil, q)
}

// Patch updates a storage.
func (s *StoragesService) Patch(ctx context.Context, uid string, changes map[string]any) (*model.Storage, error) {
	return s.res.patch(ctx, nil, uid, changes)
}

// Delete removes a storage.
func (s *StoragesService) Delete(ctx context.Context, uid string) error {
	return s.res.delete(ctx, nil, uid)
}

var errStorageRequired = errors.New("buckets: storage uid is required")

// BucketsService manages buckets inside a storage.
type BucketsService struct {
	res resource[model.BucketData]
}

// Create creates a bucket in storage.
func (s *BucketsService) Create(ctx context.Context, storage string, data model.BucketData) (*model.Bucket, error) {
	if storage == "" {
		return nil, errStorageRequired
	}
	data.StorageID = storage
	return s.res.create(ctx, scope("storage_id", storage), data)
}

// Get fetches a bucket.
func (s *BucketsService) Get(ctx context.Context, storage, uid string) (*model.Bucket, error) {
	return s.res.get(ctx, scope("storage_id", storage), uid)
}

// List lists buckets in storage.
func (s *BucketsService) List(ctx context.Context, storage string, q model.Query) (*model.List[model.Bucket], error) {
	if storage == "" {
		return nil, errStorageRequired
	}
	return s.res.list(ctx, scope("storage_id", storage), q)
}

// Patch updates a bucket.
func (s *BucketsService) Patch(ctx context.Context, storage, uid string, changes map[string]any) (*model.Bucket, error) {
	return s.res.patch(ctx, scope("storage_id", storage), uid, changes)
}

// Delete removes a bucket.
func (s *BucketsService) Delete(ctx context.Context, storage, uid string) error {
	return s.res.delete(ctx, scope("storage_id", storage), uid)
}
