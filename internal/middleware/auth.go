package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/sodular/sodular-go/internal/metrics"
)

// TokenSource is the part of a session the auth shim needs.
type TokenSource interface {
	AccessToken() string
	Refresh(ctx context.Context, failed string) (string, error)
}

// AuthConfig holds dependencies for the Auth middleware.
type AuthConfig struct {
	Tokens  TokenSource
	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// drainLimit bounds how much of a discarded 401 body is read before closing it.
const drainLimit = 8 << 10

// SkipAuth marks ctx so requests made with it bypass the auth shim entirely.
// Login, register and refresh calls use it.
func SkipAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAuthKey, true)
}

func skipAuth(ctx context.Context) bool {
	v, _ := ctx.Value(skipAuthKey).(bool)
	return v
}

// Auth attaches the bearer token to outgoing requests and, on a 401, refreshes
// the session once and replays the request once with the new token.
//
// Concurrent 401s share the session's single refresh. If the refresh fails, or
// the request body cannot be rewound, the original 401 response is returned.
// A replayed request is never retried again.
func Auth(cfg AuthConfig) Middleware {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if skipAuth(r.Context()) {
				return next.RoundTrip(r)
			}

			used := cfg.Tokens.AccessToken()
			resp, err := next.RoundTrip(withBearer(r, used))
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}

			if r.Body != nil && r.Body != http.NoBody && r.GetBody == nil {
				logger.Debug("401 on non-replayable request, not refreshing",
					"method", r.Method, "path", r.URL.Path)
				return resp, nil
			}

			fresh, rerr := cfg.Tokens.Refresh(r.Context(), used)
			if rerr != nil {
				logger.Info("session refresh failed",
					"method", r.Method, "path", r.URL.Path, "error", rerr)
				return resp, nil
			}

			replay := withBearer(r, fresh)
			if r.GetBody != nil {
				body, berr := r.GetBody()
				if berr != nil {
					logger.Debug("rewind request body failed", "error", berr)
					return resp, nil
				}
				replay.Body = body
			}

			drainAndClose(resp.Body)
			recorder.IncRequestReplayed()
			return next.RoundTrip(replay)
		})
	}
}

// withBearer clones r and sets the Authorization header when tok is non-empty.
func withBearer(r *http.Request, tok string) *http.Request {
	r2 := r.Clone(r.Context())
	if tok != "" {
		r2.Header.Set("Authorization", "Bearer "+tok)
	}
	return r2
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, drainLimit))
	_ = body.Close()
}
