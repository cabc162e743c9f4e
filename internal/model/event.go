package model

import "encoding/json"

// Realtime event names emitted for ref changes.
const (
	EventCreated  = "created"
	EventPatched  = "patched"
	EventDeleted  = "deleted"
	EventReplaced = "replaced"
)

// RefEvents lists every ref change event.
var RefEvents = []string{EventCreated, EventPatched, EventDeleted, EventReplaced}

// Event is one realtime notification as delivered to listeners.
type Event struct {
	Name       string          `json:"event"`
	DatabaseID string          `json:"database_id,omitempty"`
	TableID    string          `json:"table_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}
