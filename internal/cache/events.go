package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sodular/sodular-go/internal/model"
)

const (
	// EventStreamKey is the Redis stream relayed events are appended to.
	EventStreamKey = "stream:sodular_events"

	// MaxEventStreamLen is the approximate max length of the stream.
	MaxEventStreamLen = 100000
)

// PublishEvent appends ev to the event stream and returns the stream entry ID.
func (c *Cache) PublishEvent(ctx context.Context, ev model.Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: EventStreamKey,
		MaxLen: MaxEventStreamLen,
		Approx: true,
		ID:     "*",
		Values: eventValues(ev, data, time.Now()),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// eventValues builds the stream entry fields. event, database_id and table_id
// are duplicated outside the payload so consumers can route without decoding.
func eventValues(ev model.Event, payload []byte, at time.Time) map[string]any {
	return map[string]any{
		"event":       ev.Name,
		"database_id": ev.DatabaseID,
		"table_id":    ev.TableID,
		"payload":     string(payload),
		"received_at": at.UTC().Format(time.RFC3339Nano),
	}
}

// RecentEvents returns up to count events, newest first.
func (c *Cache) RecentEvents(ctx context.Context, count int64) ([]model.Event, error) {
	msgs, err := c.client.XRevRangeN(ctx, EventStreamKey, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange: %w", err)
	}

	out := make([]model.Event, 0, len(msgs))
	for _, msg := range msgs {
		ev, err := decodeEventMessage(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", msg.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func decodeEventMessage(values map[string]any) (model.Event, error) {
	raw, ok := values["payload"].(string)
	if !ok {
		return model.Event{}, fmt.Errorf("missing payload")
	}
	var ev model.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return model.Event{}, fmt.Errorf("decode payload: %w", err)
	}
	return ev, nil
}
