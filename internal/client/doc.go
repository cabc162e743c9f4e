// Package client is the Sodular SDK: typed services for auth, databases,
// tables, refs, storage, buckets and files on top of an HTTP transport that
// attaches the session's bearer token and refreshes it once when the server
// answers 401.
//
// A Client owns its session; there is no package-level state. Use returns a
// copy scoped to another database that shares the same session.
package client
