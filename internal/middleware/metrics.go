package middleware

import (
	"net/http"
	"time"

	"github.com/sodular/sodular-go/internal/metrics"
)

// Metrics records every wire attempt with recorder.
func Metrics(recorder metrics.Recorder) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(r)

			status := 0
			if err == nil {
				status = resp.StatusCode
			}
			recorder.ObserveRequest(r.Method, status, time.Since(start))
			return resp, err
		})
	}
}
