package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sodular/sodular-go/internal/metrics"
	"github.com/sodular/sodular-go/internal/middleware"
	"github.com/sodular/sodular-go/internal/model"
	"github.com/sodular/sodular-go/internal/session"
	"github.com/sodular/sodular-go/internal/token"
)

// Version is reported in the default User-Agent.
const Version = "0.3.0"

const (
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 10 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 15 * time.Second
)

// Client talks to one Sodular API. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	api        *http.Client // JSON calls, bounded by the configured timeout
	stream     *http.Client // downloads and uploads, bounded by the context only
	session    *session.Session
	logger     *slog.Logger
	metrics    metrics.Recorder
	databaseID string
	userAgent  string

	Auth      *AuthService
	Databases *DatabasesService
	Tables    *TablesService
	Refs      *RefsService
	Storages  *StoragesService
	Buckets   *BucketsService
	Files     *FilesService
}

// New builds a Client for baseURL (for example "https://api.example.com/api/v1").
// Tokens are not loaded; call LoadSession to restore a persisted login.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", baseURL)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	sess := session.New(cfg.store, logger, recorder)

	base := http.RoundTripper(nil)
	if cfg.httpClient != nil {
		base = cfg.httpClient.Transport
	}
	if base == nil {
		base = NewTransport()
	}

	rt := middleware.Chain(base,
		middleware.RequestID,
		middleware.Auth(middleware.AuthConfig{Tokens: sess, Logger: logger, Metrics: recorder}),
		middleware.Logger(logger.With("component", "http")),
		middleware.Metrics(recorder),
	)

	c := &Client{
		baseURL:    u,
		api:        &http.Client{Transport: rt, Timeout: cfg.timeout},
		stream:     &http.Client{Transport: rt},
		session:    sess,
		logger:     logger,
		metrics:    recorder,
		databaseID: cfg.databaseID,
		userAgent:  cfg.userAgent,
	}
	if cfg.httpClient != nil {
		c.api.Jar = cfg.httpClient.Jar
		c.stream.Jar = cfg.httpClient.Jar
	}
	c.initServices()
	sess.SetRefresher(c.refreshTokens)
	return c, nil
}

// NewTransport returns a transport with bounded dial, TLS and header timeouts.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: ResponseHeaderTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}

func (c *Client) initServices() {
	c.Auth = &AuthService{c: c, users: resource[model.UserData]{c: c, path: "auth/users"}}
	c.Databases = &DatabasesService{res: resource[model.DatabaseData]{c: c, path: "database"}}
	c.Tables = &TablesService{res: resource[model.TableData]{c: c, path: "tables"}}
	c.Refs = &RefsService{res: resource[map[string]any]{c: c, path: "ref"}}
	c.Storages = &StoragesService{res: resource[model.StorageData]{c: c, path: "storage"}}
	c.Buckets = &BucketsService{res: resource[model.BucketData]{c: c, path: "buckets"}}
	c.Files = &FilesService{c: c, res: resource[model.FileData]{c: c, path: "files"}}
}

// Use returns a client scoped to databaseID that shares this client's session
// and connections.
func (c *Client) Use(databaseID string) *Client {
	cp := *c
	cp.databaseID = databaseID
	cp.initServices()
	return &cp
}

// DatabaseID returns the database the client is scoped to, or "".
func (c *Client) DatabaseID() string {
	return c.databaseID
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Session exposes the token holder, for example to hand the access token to the realtime relay.
func (c *Client) Session() *session.Session {
	return c.session
}

// LoadSession restores tokens from the configured store.
func (c *Client) LoadSession(ctx context.Context) error {
	return c.session.Load(ctx)
}

// IsAuthenticated reports whether an access token is held.
func (c *Client) IsAuthenticated() bool {
	return c.session.AccessToken() != ""
}

// refreshTokens is the session's Refresher. It bypasses the auth shim.
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (token.Pair, error) {
	var out authPayload
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.call(middleware.SkipAuth(ctx), http.MethodPost, "auth/refresh-token", nil, body, &out); err != nil {
		return token.Pair{}, err
	}
	p := out.pair()
	if p.AccessToken == "" {
		return token.Pair{}, errors.New("refresh response carried no access token")
	}
	return p, nil
}
