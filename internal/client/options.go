package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sodular/sodular-go/internal/metrics"
	"github.com/sodular/sodular-go/internal/token"
)

// DefaultTimeout is the total per-request timeout for JSON calls.
const DefaultTimeout = 30 * time.Second

type config struct {
	httpClient *http.Client
	timeout    time.Duration
	store      token.Store
	logger     *slog.Logger
	metrics    metrics.Recorder
	databaseID string
	userAgent  string
}

// Option configures New.
type Option func(*config)

func defaultConfig() config {
	return config{
		timeout:   DefaultTimeout,
		userAgent: "sodular-go/" + Version,
	}
}

// WithHTTPClient sets the base client. Its Transport is wrapped, never mutated.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) { cfg.httpClient = c }
}

// WithTimeout sets the total timeout for JSON calls. Downloads rely on the context only.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.timeout = d }
}

// WithTokenStore persists tokens in s. Default is an in-memory store.
func WithTokenStore(s token.Store) Option {
	return func(cfg *config) { cfg.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) { cfg.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(cfg *config) { cfg.metrics = r }
}

// WithDatabase scopes every call to databaseID.
func WithDatabase(databaseID string) Option {
	return func(cfg *config) { cfg.databaseID = databaseID }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cfg *config) { cfg.userAgent = ua }
}
