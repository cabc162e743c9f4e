package realtime

import (
	"math/rand"
	"time"
)

// Reconnect delays; attempts past the end reuse the last entry.
var reconnectDelays = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// JitterFactor is the ±fraction of jitter applied to reconnect delays.
const JitterFactor = 0.2

// NextReconnectDelay returns the wait before reconnect attempt n (0-indexed).
func NextReconnectDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(reconnectDelays) {
		attempt = len(reconnectDelays) - 1
	}

	base := reconnectDelays[attempt]
	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(base) + jitter)
}
