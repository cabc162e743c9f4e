package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Sort directions understood by the API.
const (
	SortAsc  = 1
	SortDesc = -1
)

// Query narrows a list or get call.
// Filter, Sort and Select travel as JSON-encoded query parameters.
type Query struct {
	Filter map[string]any
	Sort   map[string]int
	Select []string
	Limit  int
	Skip   int
}

// Encode writes q into values. Empty parts are omitted.
func (q Query) Encode(values url.Values) error {
	if len(q.Filter) > 0 {
		if err := setJSON(values, "filter", q.Filter); err != nil {
			return err
		}
	}
	if len(q.Sort) > 0 {
		for field, dir := range q.Sort {
			if dir != SortAsc && dir != SortDesc {
				return fmt.Errorf("invalid sort direction %d for %q", dir, field)
			}
		}
		if err := setJSON(values, "sort", q.Sort); err != nil {
			return err
		}
	}
	if len(q.Select) > 0 {
		if err := setJSON(values, "select", q.Select); err != nil {
			return err
		}
	}
	if q.Limit < 0 || q.Skip < 0 {
		return fmt.Errorf("limit and skip must not be negative")
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		values.Set("skip", strconv.Itoa(q.Skip))
	}
	return nil
}

// ByUID returns a query matching a single document uid.
func ByUID(uid string) Query {
	return Query{Filter: map[string]any{"uid": uid}, Limit: 1}
}

func setJSON(values url.Values, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	values.Set(key, string(b))
	return nil
}
