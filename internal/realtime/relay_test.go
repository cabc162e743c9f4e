package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sodular/sodular-go/internal/metrics"
	"github.com/sodular/sodular-go/internal/model"
)

const waitTimeout = 3 * time.Second

// ioServer is a minimal socket.io v5 endpoint. It accepts clients whose
// connect auth carries token and records every frame they send afterwards.
type ioServer struct {
	*httptest.Server

	token    string
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn

	connects atomic.Int32
	received chan string
}

func newIOServer(t *testing.T, token string) *ioServer {
	t.Helper()
	s := &ioServer{token: token, received: make(chan string, 64)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(func() {
		s.dropAll()
		s.Server.Close()
	})
	return s
}

func (s *ioServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "bad transport", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	open := `0{"sid":"eio-1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(open)); err != nil {
		return
	}

	_, msg, err := conn.ReadMessage()
	if err != nil || !strings.HasPrefix(string(msg), "40") {
		return
	}
	var auth struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(msg[2:], &auth)
	if want := s.acceptedToken(); want != "" && auth.Token != want {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`44{"message":"unauthorized"}`))
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	err = conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"sio-1"}`))
	s.mu.Unlock()
	if err != nil {
		return
	}
	s.connects.Add(1)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case s.received <- string(msg):
		default:
		}
	}
}

func (s *ioServer) acceptedToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// rotateToken makes the server accept only tok from now on.
func (s *ioServer) rotateToken(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok
}

// send writes a raw frame to the newest client.
func (s *ioServer) send(t *testing.T, frame string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no connected client")
	}
	if err := s.conns[len(s.conns)-1].WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (s *ioServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

// waitFrame blocks until the client sends want.
func (s *ioServer) waitFrame(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case got := <-s.received:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for client frame %s", want)
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialTest(t *testing.T, s *ioServer, tok string, mutate ...func(*Options)) *Relay {
	t.Helper()
	opts := Options{
		Token:          func() string { return tok },
		Logger:         quietLogger(),
		ReconnectDelay: func(int) time.Duration { return 10 * time.Millisecond },
	}
	for _, m := range mutate {
		m(&opts)
	}
	r, err := Dial(context.Background(), s.URL, opts)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func recv(t *testing.T, ch <-chan model.Event) model.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		return model.Event{}
	}
}

func TestDial_RejectedToken(t *testing.T) {
	srv := newIOServer(t, "good")

	_, err := Dial(context.Background(), srv.URL, Options{
		Token:  func() string { return "bad" },
		Logger: quietLogger(),
	})
	if !errors.Is(err, ErrConnectRefused) {
		t.Fatalf("Dial() error = %v, want ErrConnectRefused", err)
	}
	if !strings.Contains(err.Error(), "unauthorized") {
		t.Errorf("error %q does not carry the server message", err)
	}
}

func TestRelay_JoinAndLeaveEmitEvents(t *testing.T) {
	srv := newIOServer(t, "tok")
	r := dialTest(t, srv, "tok")
	ctx := context.Background()
	ch := Channel{DatabaseID: "db1", TableID: "t1"}

	if err := r.Join(ctx, ch); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	srv.waitFrame(t, `42["join",{"database_id":"db1","table_id":"t1"}]`)

	if got := r.Channels(); len(got) != 1 || got[0] != ch {
		t.Errorf("Channels() = %v", got)
	}

	if err := r.Leave(ctx, ch); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	srv.waitFrame(t, `42["leave",{"database_id":"db1","table_id":"t1"}]`)

	if err := r.Join(ctx, Channel{DatabaseID: "db1"}); !errors.Is(err, errChannelRequired) {
		t.Errorf("Join() without table error = %v", err)
	}
}

func TestRelay_ForwardsMatchingEvents(t *testing.T) {
	srv := newIOServer(t, "tok")
	rec := metrics.NewInMemory()
	r := dialTest(t, srv, "tok", func(o *Options) { o.Metrics = rec })

	mine := make(chan model.Event, 8)
	other := make(chan model.Event, 8)
	r.On(Channel{DatabaseID: "db1", TableID: "t1"}, model.EventCreated, func(ev model.Event) { mine <- ev })
	r.On(Channel{DatabaseID: "db1", TableID: "t2"}, model.EventCreated, func(ev model.Event) { other <- ev })

	srv.send(t, `42["created",{"database_id":"db1","table_id":"t1","data":{"uid":"r1"}}]`)
	srv.send(t, `42["created",{"uid":"r2"}]`)

	first := recv(t, mine)
	if first.TableID != "t1" || first.DatabaseID != "db1" {
		t.Errorf("first event scope = %s/%s", first.DatabaseID, first.TableID)
	}
	if !strings.Contains(string(first.Data), `"r1"`) {
		t.Errorf("first event data = %s", first.Data)
	}

	second := recv(t, mine)
	if !strings.Contains(string(second.Data), `"r2"`) {
		t.Errorf("second event data = %s", second.Data)
	}

	// Events arrive in order, so the unscoped event reaching other first
	// proves the t1 event skipped it.
	got := recv(t, other)
	if !strings.Contains(string(got.Data), `"r2"`) {
		t.Errorf("other listener received %s, want only the unscoped event", got.Data)
	}

	if snap := rec.Snapshot(); snap.RealtimeEvents != 2 {
		t.Errorf("RealtimeEvents = %d, want 2", snap.RealtimeEvents)
	}
}

func TestRelay_Unsubscribe(t *testing.T) {
	srv := newIOServer(t, "tok")
	r := dialTest(t, srv, "tok")

	var removed atomic.Int32
	sentinel := make(chan model.Event, 1)
	sub := r.On(Channel{}, model.EventDeleted, func(model.Event) { removed.Add(1) })
	r.On(Channel{}, model.EventPatched, func(ev model.Event) { sentinel <- ev })

	sub.Unsubscribe()
	sub.Unsubscribe()

	srv.send(t, `42["deleted",{"uid":"x"}]`)
	srv.send(t, `42["patched",{"uid":"y"}]`)
	recv(t, sentinel)

	if removed.Load() != 0 {
		t.Errorf("unsubscribed listener called %d times", removed.Load())
	}
	if sub.ID() == "" {
		t.Error("subscription has no id")
	}
}

func TestRelay_AnswersPing(t *testing.T) {
	srv := newIOServer(t, "tok")
	dialTest(t, srv, "tok")

	srv.send(t, "2")
	srv.waitFrame(t, "3")
}

func TestRelay_RecoversListenerPanic(t *testing.T) {
	srv := newIOServer(t, "tok")
	r := dialTest(t, srv, "tok")

	after := make(chan model.Event, 1)
	r.On(Channel{}, model.EventCreated, func(model.Event) { panic("listener bug") })
	r.On(Channel{}, model.EventReplaced, func(ev model.Event) { after <- ev })

	srv.send(t, `42["created",{"uid":"1"}]`)
	srv.send(t, `42["replaced",{"uid":"2"}]`)

	if ev := recv(t, after); ev.Name != model.EventReplaced {
		t.Errorf("event = %q, want replaced", ev.Name)
	}
}

func TestRelay_ReconnectsAndRejoins(t *testing.T) {
	srv := newIOServer(t, "tok")
	rec := metrics.NewInMemory()
	r := dialTest(t, srv, "tok", func(o *Options) { o.Metrics = rec })

	ch := Channel{DatabaseID: "db1", TableID: "t1"}
	if err := r.Join(context.Background(), ch); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	joinFrame := `42["join",{"database_id":"db1","table_id":"t1"}]`
	srv.waitFrame(t, joinFrame)

	srv.dropAll()
	srv.waitFrame(t, joinFrame)

	if got := srv.connects.Load(); got != 2 {
		t.Errorf("connects = %d, want 2", got)
	}
	if snap := rec.Snapshot(); snap.RealtimeReconnects != 1 {
		t.Errorf("RealtimeReconnects = %d, want 1", snap.RealtimeReconnects)
	}

	events := make(chan model.Event, 1)
	r.On(ch, model.EventCreated, func(ev model.Event) { events <- ev })
	srv.send(t, `42["created",{"database_id":"db1","table_id":"t1"}]`)
	recv(t, events)
}

func TestRelay_NoReconnectStops(t *testing.T) {
	srv := newIOServer(t, "tok")
	r := dialTest(t, srv, "tok", func(o *Options) { o.NoReconnect = true })

	srv.dropAll()

	select {
	case <-r.Done():
	case <-time.After(waitTimeout):
		t.Fatal("relay did not stop")
	}
	if r.Err() == nil {
		t.Error("Err() = nil after connection loss")
	}
	if err := r.Join(context.Background(), Channel{DatabaseID: "d", TableID: "t"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Join() after stop error = %v, want ErrClosed", err)
	}
}

func TestRelay_ServerDisconnectStops(t *testing.T) {
	srv := newIOServer(t, "tok")
	r := dialTest(t, srv, "tok")

	srv.send(t, "41")

	select {
	case <-r.Done():
	case <-time.After(waitTimeout):
		t.Fatal("relay did not stop")
	}
	if !errors.Is(r.Err(), ErrServerDisconnect) {
		t.Errorf("Err() = %v, want ErrServerDisconnect", r.Err())
	}
}

func TestRelay_Close(t *testing.T) {
	srv := newIOServer(t, "tok")
	r := dialTest(t, srv, "tok")

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	srv.waitFrame(t, "41")
	if !errors.Is(r.Err(), ErrClosed) {
		t.Errorf("Err() = %v, want ErrClosed", r.Err())
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRelay_ReauthBeforeReconnect(t *testing.T) {
	srv := newIOServer(t, "tok1")

	var current atomic.Value
	current.Store("tok1")
	var reauths atomic.Int32
	r := dialTest(t, srv, "", func(o *Options) {
		o.Token = func() string { return current.Load().(string) }
		o.Reauth = func(context.Context) error {
			reauths.Add(1)
			current.Store("tok2")
			return nil
		}
	})

	ch := Channel{DatabaseID: "db1", TableID: "t1"}
	if err := r.Join(context.Background(), ch); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	joinFrame := `42["join",{"database_id":"db1","table_id":"t1"}]`
	srv.waitFrame(t, joinFrame)

	srv.rotateToken("tok2")
	srv.dropAll()
	srv.waitFrame(t, joinFrame)

	if got := reauths.Load(); got != 1 {
		t.Errorf("reauth calls = %d, want 1", got)
	}
	if got := srv.connects.Load(); got != 2 {
		t.Errorf("connects = %d, want 2", got)
	}
}

func TestRelay_GivesUpAfterMaxReconnectAttempts(t *testing.T) {
	srv := newIOServer(t, "tok")

	var reauths atomic.Int32
	r := dialTest(t, srv, "tok", func(o *Options) {
		o.MaxReconnectAttempts = 3
		o.Reauth = func(context.Context) error {
			reauths.Add(1)
			return errors.New("session expired")
		}
	})

	srv.rotateToken("never-issued")
	srv.dropAll()

	select {
	case <-r.Done():
	case <-time.After(waitTimeout):
		t.Fatal("relay did not give up")
	}
	if err := r.Err(); err == nil || !strings.Contains(err.Error(), "gave up after 3") {
		t.Errorf("Err() = %v, want give-up error", err)
	}
	if got := reauths.Load(); got != 3 {
		t.Errorf("reauth calls = %d, want 3", got)
	}
}

func TestRelay_CloseFromHandler(t *testing.T) {
	srv := newIOServer(t, "tok")
	r := dialTest(t, srv, "tok")

	ch := Channel{DatabaseID: "db1", TableID: "t1"}
	closed := make(chan error, 1)
	r.On(ch, model.EventDeleted, func(model.Event) { closed <- r.Close() })
	srv.send(t, `42["deleted",{"database_id":"db1","table_id":"t1"}]`)

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Close() from handler did not return")
	}
	select {
	case <-r.Done():
	case <-time.After(waitTimeout):
		t.Fatal("relay did not stop")
	}
	if !errors.Is(r.Err(), ErrClosed) {
		t.Errorf("Err() = %v, want ErrClosed", r.Err())
	}
}
