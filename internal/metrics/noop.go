package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest is a no-op.
func (n *NoopRecorder) ObserveRequest(method string, status int, duration time.Duration) {}

// IncTokenRefresh is a no-op.
func (n *NoopRecorder) IncTokenRefresh(status string) {}

// IncRequestReplayed is a no-op.
func (n *NoopRecorder) IncRequestReplayed() {}

// IncRealtimeEvent is a no-op.
func (n *NoopRecorder) IncRealtimeEvent(event string) {}

// IncRealtimeReconnect is a no-op.
func (n *NoopRecorder) IncRealtimeReconnect() {}
