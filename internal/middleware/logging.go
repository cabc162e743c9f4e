package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logger returns a middleware that logs each wire attempt.
// Uses structured logging with slog. Headers are never logged.
func Logger(logger *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(r)

			duration := time.Since(start)

			attrs := []slog.Attr{
				slog.String("request_id", r.Header.Get(RequestIDHeader)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(r.Context(), slog.LevelWarn, "http request failed", attrs...)
				return resp, err
			}

			attrs = append(attrs, slog.Int("status_code", resp.StatusCode))

			// Log at appropriate level based on status code
			level := slog.LevelDebug
			if resp.StatusCode >= 500 {
				level = slog.LevelWarn
			} else if resp.StatusCode >= 400 {
				level = slog.LevelInfo
			}

			logger.LogAttrs(r.Context(), level, "http request", attrs...)
			return resp, nil
		})
	}
}
