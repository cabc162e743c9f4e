package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sodular/sodular-go/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// queryFlags binds list flags shared by every list command.
type queryFlags struct {
	filter string
	sort   string
	fields string
	limit  int
	skip   int
}

func (q *queryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&q.filter, "filter", "", `filter as JSON, e.g. '{"data.status":"open"}'`)
	cmd.Flags().StringVar(&q.sort, "sort", "", `sort as JSON, e.g. '{"createdAt":-1}'`)
	cmd.Flags().StringVar(&q.fields, "select", "", "comma-separated fields to return")
	cmd.Flags().IntVar(&q.limit, "limit", 0, "maximum results")
	cmd.Flags().IntVar(&q.skip, "skip", 0, "results to skip")
}

func (q *queryFlags) query() (model.Query, error) {
	out := model.Query{Limit: q.limit, Skip: q.skip}
	if q.filter != "" {
		if err := json.Unmarshal([]byte(q.filter), &out.Filter); err != nil {
			return out, fmt.Errorf("--filter: %w", err)
		}
	}
	if q.sort != "" {
		if err := json.Unmarshal([]byte(q.sort), &out.Sort); err != nil {
			return out, fmt.Errorf("--sort: %w", err)
		}
	}
	if q.fields != "" {
		for _, f := range strings.Split(q.fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out.Select = append(out.Select, f)
			}
		}
	}
	return out, nil
}

// parseData decodes a --data JSON object.
func parseData(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, fmt.Errorf("--data is required")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("--data must be a JSON object: %w", err)
	}
	return out, nil
}
