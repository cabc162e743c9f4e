package middleware

import (
	"context"
	"net/http"

	"github.com/oklog/ulid/v2"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for a caller-chosen request ID.
	RequestIDKey contextKey = "request_id"
	// skipAuthKey marks requests the auth shim must leave alone.
	skipAuthKey contextKey = "skip_auth"
)

// RequestIDHeader is the HTTP header for request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID stamps every outgoing request with an X-Request-ID.
// A header already on the request wins, then one stored with WithRequestID,
// otherwise a new ULID is generated.
func RequestID(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(RequestIDHeader) != "" {
			return next.RoundTrip(r)
		}

		requestID := GetRequestID(r.Context())
		if requestID == "" {
			requestID = ulid.Make().String()
		}

		r2 := r.Clone(context.WithValue(r.Context(), RequestIDKey, requestID))
		r2.Header.Set(RequestIDHeader, requestID)
		return next.RoundTrip(r2)
	})
}

// WithRequestID returns a context whose requests carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
