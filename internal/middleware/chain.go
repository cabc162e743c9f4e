// Package middleware provides http.RoundTripper middleware for outgoing SDK requests.
package middleware

import "net/http"

// Middleware wraps an http.RoundTripper and returns a new one.
// The returned RoundTripper must be safe for concurrent use.
type Middleware func(http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to an http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Chain applies middlewares to base: Chain(base, a, b, c) returns a(b(c(base))).
// A nil base is replaced by http.DefaultTransport.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		base = mws[i](base)
	}
	return base
}
