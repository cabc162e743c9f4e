package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Requests           uint64
	RequestErrors      uint64
	Unauthorized       uint64
	RequestTotalNs     int64
	RefreshSuccess     uint64
	RefreshFailed      uint64
	Replays            uint64
	RealtimeEvents     uint64
	RealtimeReconnects uint64
}

// InMemoryRecorder stores metrics in memory for tests and the CLI --stats flag.
type InMemoryRecorder struct {
	requests           uint64
	requestErrors      uint64
	unauthorized       uint64
	requestTotalNs     int64
	refreshSuccess     uint64
	refreshFailed      uint64
	replays            uint64
	realtimeEvents     uint64
	realtimeReconnects uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		Requests:           atomic.LoadUint64(&m.requests),
		RequestErrors:      atomic.LoadUint64(&m.requestErrors),
		Unauthorized:       atomic.LoadUint64(&m.unauthorized),
		RequestTotalNs:     atomic.LoadInt64(&m.requestTotalNs),
		RefreshSuccess:     atomic.LoadUint64(&m.refreshSuccess),
		RefreshFailed:      atomic.LoadUint64(&m.refreshFailed),
		Replays:            atomic.LoadUint64(&m.replays),
		RealtimeEvents:     atomic.LoadUint64(&m.realtimeEvents),
		RealtimeReconnects: atomic.LoadUint64(&m.realtimeReconnects),
	}
}

// ObserveRequest counts a wire attempt. A status of 0 means a transport error.
func (m *InMemoryRecorder) ObserveRequest(method string, status int, duration time.Duration) {
	atomic.AddUint64(&m.requests, 1)
	atomic.AddInt64(&m.requestTotalNs, duration.Nanoseconds())
	switch {
	case status == 0 || status >= 500:
		atomic.AddUint64(&m.requestErrors, 1)
	case status == 401:
		atomic.AddUint64(&m.unauthorized, 1)
	}
}

// IncTokenRefresh increments the refresh counter for status.
func (m *InMemoryRecorder) IncTokenRefresh(status string) {
	if status == RefreshSuccess {
		atomic.AddUint64(&m.refreshSuccess, 1)
		return
	}
	atomic.AddUint64(&m.refreshFailed, 1)
}

// IncRequestReplayed increments the replay counter.
func (m *InMemoryRecorder) IncRequestReplayed() {
	atomic.AddUint64(&m.replays, 1)
}

// IncRealtimeEvent increments the delivered event counter.
func (m *InMemoryRecorder) IncRealtimeEvent(event string) {
	atomic.AddUint64(&m.realtimeEvents, 1)
}

// IncRealtimeReconnect increments the reconnect counter.
func (m *InMemoryRecorder) IncRealtimeReconnect() {
	atomic.AddUint64(&m.realtimeReconnects, 1)
}
