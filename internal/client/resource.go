package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sodular/sodular-go/internal/model"
)

// resource implements the CRUD calls every collection endpoint shares.
type resource[T any] struct {
	c    *Client
	path string
}

type dataBody struct {
	Data any `json:"data"`
}

func (r resource[T]) create(ctx context.Context, params url.Values, data any) (*model.Document[T], error) {
	var out model.Document[T]
	if err := r.c.call(ctx, http.MethodPost, r.path, params, dataBody{Data: data}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r resource[T]) get(ctx context.Context, params url.Values, uid string) (*model.Document[T], error) {
	if uid == "" {
		return nil, fmt.Errorf("%s: uid is required", r.path)
	}
	var out model.Document[T]
	if err := r.c.call(ctx, http.MethodGet, r.path+"/"+url.PathEscape(uid), params, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r resource[T]) list(ctx context.Context, params url.Values, q model.Query) (*model.List[model.Document[T]], error) {
	if params == nil {
		params = url.Values{}
	}
	if err := q.Encode(params); err != nil {
		return nil, err
	}
	out := model.List[model.Document[T]]{}
	if err := r.c.call(ctx, http.MethodGet, r.path, params, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// findOne returns the first match for q, or an *APIError matching ErrNotFound.
func (r resource[T]) findOne(ctx context.Context, params url.Values, q model.Query) (*model.Document[T], error) {
	q.Limit = 1
	res, err := r.list(ctx, params, q)
	if err != nil {
		return nil, err
	}
	if len(res.List) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: r.path + ": no matching document"}
	}
	return &res.List[0], nil
}

func (r resource[T]) patch(ctx context.Context, params url.Values, uid string, changes map[string]any) (*model.Document[T], error) {
	return r.update(ctx, http.MethodPatch, params, uid, changes)
}

func (r resource[T]) replace(ctx context.Context, params url.Values, uid string, data any) (*model.Document[T], error) {
	return r.update(ctx, http.MethodPut, params, uid, data)
}

func (r resource[T]) update(ctx context.Context, method string, params url.Values, uid string, data any) (*model.Document[T], error) {
	if uid == "" {
		return nil, fmt.Errorf("%s: uid is required", r.path)
	}
	var out model.Document[T]
	if err := r.c.call(ctx, method, r.path+"/"+url.PathEscape(uid), params, dataBody{Data: data}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r resource[T]) delete(ctx context.Context, params url.Values, uid string) error {
	if uid == "" {
		return fmt.Errorf("%s: uid is required", r.path)
	}
	return r.c.call(ctx, http.MethodDelete, r.path+"/"+url.PathEscape(uid), params, nil, nil)
}

// scope returns url.Values with key set, or nil when value is empty.
func scope(key, value string) url.Values {
	if value == "" {
		return nil
	}
	return url.Values{key: {value}}
}
