// Package realtime relays Sodular change events from the socket.io endpoint
// to in-process listeners.
//
// A Relay speaks socket.io v5 over an engine.io v4 WebSocket, joins
// database/table channels, and forwards created, patched, deleted and
// replaced events to the callbacks registered with On. Delivery is
// best-effort: there is no ordering, replay or backpressure.
package realtime
