package model

import (
	"encoding/json"
	"net/url"
	"testing"
)

func TestQuery_Encode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   Query
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "empty query sets nothing",
			query: Query{},
			want:  map[string]string{},
		},
		{
			name: "filter is JSON encoded",
			query: Query{
				Filter: map[string]any{"data.status": "open"},
			},
			want: map[string]string{"filter": `{"data.status":"open"}`},
		},
		{
			name: "sort select limit skip",
			query: Query{
				Sort:   map[string]int{"createdAt": SortDesc},
				Select: []string{"uid", "data.title"},
				Limit:  20,
				Skip:   40,
			},
			want: map[string]string{
				"sort":   `{"createdAt":-1}`,
				"select": `["uid","data.title"]`,
				"limit":  "20",
				"skip":   "40",
			},
		},
		{
			name:    "invalid sort direction",
			query:   Query{Sort: map[string]int{"name": 2}},
			wantErr: true,
		},
		{
			name:    "negative limit",
			query:   Query{Limit: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			values := url.Values{}
			err := tt.query.Encode(values)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(values) != len(tt.want) {
				t.Errorf("got %d params, want %d (%v)", len(values), len(tt.want), values)
			}
			for k, v := range tt.want {
				if got := values.Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestByUID(t *testing.T) {
	t.Parallel()

	values := url.Values{}
	if err := ByUID("abc").Encode(values); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var filter map[string]string
	if err := json.Unmarshal([]byte(values.Get("filter")), &filter); err != nil {
		t.Fatalf("decode filter: %v", err)
	}
	if filter["uid"] != "abc" {
		t.Errorf("filter uid = %q, want abc", filter["uid"])
	}
	if values.Get("limit") != "1" {
		t.Errorf("limit = %q, want 1", values.Get("limit"))
	}
}
