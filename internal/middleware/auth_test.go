package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sodular/sodular-go/internal/metrics"
	"github.com/sodular/sodular-go/internal/session"
	"github.com/sodular/sodular-go/internal/token"
)

// authServer accepts only "Bearer <valid>" on /data and hands out valid on refresh.
type authServer struct {
	*httptest.Server

	valid        string
	refreshOK    bool
	alwaysReject bool
	barrier      *sync.WaitGroup

	refreshCalls atomic.Int32
	dataCalls    atomic.Int32
	validCalls   atomic.Int32
	bodies       sync.Map
}

func newAuthServer(t *testing.T, valid string, refreshOK bool) *authServer {
	t.Helper()
	s := &authServer{valid: valid, refreshOK: refreshOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *authServer) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/refresh-token":
		s.refreshCalls.Add(1)
		if !s.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"invalid refresh token"}`)
			return
		}
		_, _ = fmt.Fprintf(w, `{"data":{"tokens":{"accessToken":%q,"refreshToken":"r2"}}}`, s.valid)
	case "/data":
		s.dataCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("Authorization") != "Bearer "+s.valid || s.alwaysReject {
			if s.barrier != nil && r.Header.Get("Authorization") != "Bearer "+s.valid {
				s.barrier.Done()
				s.barrier.Wait()
			}
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"jwt expired"}`)
			return
		}
		s.validCalls.Add(1)
		s.bodies.Store(string(body), true)
		_, _ = io.WriteString(w, `{"data":"ok"}`)
	default:
		http.NotFound(w, r)
	}
}

func (s *authServer) refresher() session.Refresher {
	return func(ctx context.Context, rt string) (token.Pair, error) {
		body := strings.NewReader(fmt.Sprintf(`{"refreshToken":%q}`, rt))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL+"/auth/refresh-token", body)
		if err != nil {
			return token.Pair{}, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return token.Pair{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return token.Pair{}, fmt.Errorf("refresh status %d", resp.StatusCode)
		}
		var env struct {
			Data struct {
				Tokens token.Pair `json:"tokens"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return token.Pair{}, err
		}
		return env.Data.Tokens, nil
	}
}

func newShimClient(t *testing.T, srv *authServer, pair token.Pair) (*http.Client, *session.Session, *metrics.InMemoryRecorder) {
	t.Helper()
	rec := metrics.NewInMemory()
	sess := session.New(token.NewMemoryStore(), nil, rec)
	sess.Set(context.Background(), pair)
	sess.SetRefresher(srv.refresher())

	rt := Chain(http.DefaultTransport, Auth(AuthConfig{Tokens: sess, Metrics: rec}))
	return &http.Client{Transport: rt}, sess, rec
}

func get(t *testing.T, c *http.Client, url string) int {
	t.Helper()
	resp, err := c.Get(url)
	if err != nil {
		t.Errorf("GET %s: %v", url, err)
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func TestAuth_ConcurrentUnauthorizedRefreshesOnce(t *testing.T) {
	t.Parallel()

	const n = 16
	srv := newAuthServer(t, "fresh", true)
	srv.barrier = &sync.WaitGroup{}
	srv.barrier.Add(n)

	c, sess, rec := newShimClient(t, srv, token.Pair{AccessToken: "stale", RefreshToken: "r1"})

	var wg sync.WaitGroup
	statuses := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i] = get(t, c, srv.URL+"/data")
		}(i)
	}
	wg.Wait()

	if got := srv.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	for i, st := range statuses {
		if st != http.StatusOK {
			t.Errorf("request %d: status %d, want 200", i, st)
		}
	}
	if got := srv.validCalls.Load(); got != n {
		t.Errorf("replayed requests = %d, want %d", got, n)
	}
	if got := srv.dataCalls.Load(); got != 2*n {
		t.Errorf("total data calls = %d, want %d", got, 2*n)
	}
	if got := rec.Snapshot().Replays; got != n {
		t.Errorf("replay metric = %d, want %d", got, n)
	}
	if tok := sess.Tokens(); tok.AccessToken != "fresh" || tok.RefreshToken != "r2" {
		t.Errorf("session tokens = %+v", tok)
	}
}

func TestAuth_RefreshFailurePropagatesOriginal401(t *testing.T) {
	t.Parallel()

	const n = 8
	srv := newAuthServer(t, "fresh", false)
	srv.barrier = &sync.WaitGroup{}
	srv.barrier.Add(n)

	c, sess, _ := newShimClient(t, srv, token.Pair{AccessToken: "stale", RefreshToken: "r1"})

	var wg sync.WaitGroup
	bodies := make([]string, n)
	statuses := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.Get(srv.URL + "/data")
			if err != nil {
				t.Errorf("GET: %v", err)
				return
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			statuses[i], bodies[i] = resp.StatusCode, string(b)
		}(i)
	}
	wg.Wait()

	if got := srv.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	for i := 0; i < n; i++ {
		if statuses[i] != http.StatusUnauthorized {
			t.Errorf("request %d: status %d, want 401", i, statuses[i])
		}
		if !strings.Contains(bodies[i], "jwt expired") {
			t.Errorf("request %d: body %q is not the original 401 body", i, bodies[i])
		}
	}
	if got := srv.dataCalls.Load(); got != n {
		t.Errorf("data calls = %d, want %d (no replays)", got, n)
	}
	if !sess.Tokens().IsZero() {
		t.Errorf("tokens not cleared: %+v", sess.Tokens())
	}
}

func TestAuth_NoUnauthorizedNoRefresh(t *testing.T) {
	t.Parallel()

	srv := newAuthServer(t, "good", true)
	c, _, _ := newShimClient(t, srv, token.Pair{AccessToken: "good", RefreshToken: "r1"})

	for i := 0; i < 5; i++ {
		if st := get(t, c, srv.URL+"/data"); st != http.StatusOK {
			t.Fatalf("status %d, want 200", st)
		}
	}
	if got := srv.refreshCalls.Load(); got != 0 {
		t.Errorf("refresh calls = %d, want 0", got)
	}
}

func TestAuth_ReplayIsNotRetriedAgain(t *testing.T) {
	t.Parallel()

	srv := newAuthServer(t, "fresh", true)
	srv.alwaysReject = true
	c, _, _ := newShimClient(t, srv, token.Pair{AccessToken: "stale", RefreshToken: "r1"})

	if st := get(t, c, srv.URL+"/data"); st != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", st)
	}
	if got := srv.dataCalls.Load(); got != 2 {
		t.Errorf("data calls = %d, want 2 (original + one replay)", got)
	}
	if got := srv.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestAuth_ReplaysRequestBody(t *testing.T) {
	t.Parallel()

	srv := newAuthServer(t, "fresh", true)
	c, _, _ := newShimClient(t, srv, token.Pair{AccessToken: "stale", RefreshToken: "r1"})

	resp, err := c.Post(srv.URL+"/data", "application/json", bytes.NewReader([]byte(`{"qty":3}`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	if _, ok := srv.bodies.Load(`{"qty":3}`); !ok {
		t.Error("replayed request did not carry the original body")
	}
}

type onceReader struct{ io.Reader }

func TestAuth_NonRewindableBodyIsNotReplayed(t *testing.T) {
	t.Parallel()

	srv := newAuthServer(t, "fresh", true)
	c, _, _ := newShimClient(t, srv, token.Pair{AccessToken: "stale", RefreshToken: "r1"})

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/data", onceReader{strings.NewReader("x")})
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", resp.StatusCode)
	}
	if got := srv.refreshCalls.Load(); got != 0 {
		t.Errorf("refresh calls = %d, want 0", got)
	}
}

func TestAuth_SkipAuth(t *testing.T) {
	t.Parallel()

	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sess := session.New(nil, nil, nil)
	sess.Set(context.Background(), token.Pair{AccessToken: "a", RefreshToken: "r"})
	var refreshed atomic.Bool
	sess.SetRefresher(func(ctx context.Context, rt string) (token.Pair, error) {
		refreshed.Store(true)
		return token.Pair{AccessToken: "b"}, nil
	})
	c := &http.Client{Transport: Chain(nil, Auth(AuthConfig{Tokens: sess}))}

	req, _ := http.NewRequestWithContext(SkipAuth(context.Background()), http.MethodPost, srv.URL+"/auth/login", nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", resp.StatusCode)
	}
	if refreshed.Load() {
		t.Error("login 401 must not trigger a refresh")
	}
	if v, _ := gotAuth.Load().(string); v != "" {
		t.Errorf("Authorization = %q, want none", v)
	}
}
