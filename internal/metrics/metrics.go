// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Refresh outcomes reported to IncTokenRefresh.
const (
	RefreshSuccess = "success"
	RefreshFailed  = "failed"
)

// Recorder captures metric events for the SDK.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// HTTP metrics, one call per wire attempt (replays included).
	ObserveRequest(method string, status int, duration time.Duration)

	// Auth shim metrics
	IncTokenRefresh(status string) // status: "success" or "failed"
	IncRequestReplayed()

	// Realtime relay metrics
	IncRealtimeEvent(event string)
	IncRealtimeReconnect()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
