package cache

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sodular/sodular-go/internal/model"
)

func TestTokenKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		profile string
		want    string
	}{
		{"", "sodular:tokens:default"},
		{"default", "sodular:tokens:default"},
		{"staging", "sodular:tokens:staging"},
	}

	for _, tt := range tests {
		if got := tokenKey(tt.profile); got != tt.want {
			t.Errorf("tokenKey(%q) = %q, want %q", tt.profile, got, tt.want)
		}
	}
}

func TestEventValues(t *testing.T) {
	t.Parallel()

	ev := model.Event{
		Name:       model.EventPatched,
		DatabaseID: "db1",
		TableID:    "t1",
		Data:       json.RawMessage(`{"uid":"r1"}`),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	values := eventValues(ev, payload, at)
	if values["event"] != "patched" || values["table_id"] != "t1" || values["database_id"] != "db1" {
		t.Errorf("routing fields = %v", values)
	}
	if !strings.HasPrefix(values["received_at"].(string), "2026-03-01T12:00:00") {
		t.Errorf("received_at = %v", values["received_at"])
	}

	back, err := decodeEventMessage(values)
	if err != nil {
		t.Fatalf("decodeEventMessage() error = %v", err)
	}
	if back.Name != ev.Name || back.TableID != ev.TableID || string(back.Data) != string(ev.Data) {
		t.Errorf("decoded = %+v, want %+v", back, ev)
	}
}

func TestDecodeEventMessage_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values map[string]any
	}{
		{"missing payload", map[string]any{"event": "created"}},
		{"payload not string", map[string]any{"payload": 12}},
		{"invalid json", map[string]any{"payload": "{"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := decodeEventMessage(tt.values); err == nil {
				t.Error("expected error")
			}
		})
	}
}
