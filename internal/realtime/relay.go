package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sodular/sodular-go/internal/metrics"
	"github.com/sodular/sodular-go/internal/model"
)

const (
	defaultConnectTimeout = 10 * time.Second
	writeTimeout          = 10 * time.Second
)

var (
	// ErrConnectRefused is returned when the server rejects the socket.io connect.
	ErrConnectRefused = errors.New("realtime: connect refused")
	// ErrClosed is returned by calls on a closed relay.
	ErrClosed = errors.New("realtime: relay closed")
	// ErrServerDisconnect ends a relay the server disconnected on purpose.
	ErrServerDisconnect = errors.New("realtime: disconnected by server")

	errChannelRequired = errors.New("realtime: database_id and table_id are required")
)

// Channel identifies the change feed of one table.
type Channel struct {
	DatabaseID string `json:"database_id"`
	TableID    string `json:"table_id"`
}

// Handler receives events. Handlers run on the relay's reader goroutine, so
// a slow handler delays every other event. A handler may call Close; Close
// then returns without waiting, and the reader exits once the handler returns.
type Handler func(model.Event)

// Options configures Dial.
type Options struct {
	// Token returns the access token sent as the connect auth payload.
	// It is called on every (re)connect so refreshed tokens are picked up.
	Token   func() string
	Logger  *slog.Logger
	Metrics metrics.Recorder
	Dialer  *websocket.Dialer
	Header  http.Header

	ConnectTimeout time.Duration
	// NoReconnect ends the relay on the first unexpected disconnect.
	NoReconnect bool
	// MaxReconnectAttempts bounds consecutive failed reconnects; 0 means unlimited.
	MaxReconnectAttempts int
	// ReconnectDelay overrides NextReconnectDelay.
	ReconnectDelay func(attempt int) time.Duration
	// Reauth runs before every reconnect attempt so Token can return a
	// refreshed token. A failure is logged and the attempt goes ahead.
	Reauth func(ctx context.Context) error
}

type listener struct {
	channel Channel
	event   string
	handler Handler
}

// Relay is a socket.io connection that forwards table events to listeners.
// It is safe for concurrent use.
type Relay struct {
	url     string
	opts    Options
	logger  *slog.Logger
	metrics metrics.Recorder

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// connMu guards conn and serializes writes.
	connMu sync.Mutex
	conn   *websocket.Conn

	mu        sync.Mutex
	channels  map[Channel]struct{}
	listeners map[string]listener
	err       error

	// delivering is set while a listener runs on the reader goroutine.
	delivering atomic.Bool
}

// Dial connects to the socket.io endpoint at rawURL. http(s) and ws(s) URLs
// are accepted; an empty path becomes /socket.io/.
func Dial(ctx context.Context, rawURL string, opts Options) (*Relay, error) {
	u, err := endpoint(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ReconnectDelay == nil {
		opts.ReconnectDelay = NextReconnectDelay
	}

	r := &Relay{
		url:       u,
		opts:      opts,
		logger:    opts.Logger.With("component", "realtime"),
		metrics:   opts.Metrics,
		done:      make(chan struct{}),
		channels:  make(map[Channel]struct{}),
		listeners: make(map[string]listener),
	}

	conn, hs, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}
	r.conn = conn
	r.ctx, r.cancel = context.WithCancel(context.Background())

	go r.run(conn, hs)
	return r, nil
}

// endpoint normalises rawURL to an engine.io WebSocket URL.
func endpoint(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse realtime URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("realtime URL must be http(s) or ws(s), got %q", rawURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connect dials, reads the engine.io handshake and completes the socket.io connect.
func (r *Relay) connect(ctx context.Context) (*websocket.Conn, handshake, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ConnectTimeout)
	defer cancel()

	conn, resp, err := r.opts.Dialer.DialContext(ctx, r.url, r.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, handshake{}, fmt.Errorf("dial realtime: %w", err)
	}

	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)

	hs, err := r.handshake(conn)
	if err != nil {
		conn.Close()
		return nil, handshake{}, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	return conn, hs, nil
}

func (r *Relay) handshake(conn *websocket.Conn) (handshake, error) {
	var hs handshake
	p, err := readPacket(conn)
	if err != nil {
		return hs, fmt.Errorf("read open: %w", err)
	}
	if p.kind != kindOpen {
		return hs, fmt.Errorf("%w: expected open, got kind %d", errMalformedPacket, p.kind)
	}
	if err := json.Unmarshal(p.payload, &hs); err != nil {
		return hs, fmt.Errorf("decode open: %w", err)
	}

	var auth any
	if r.opts.Token != nil {
		if tok := r.opts.Token(); tok != "" {
			auth = map[string]string{"token": tok}
		}
	}
	frame, err := encodeConnect(auth)
	if err != nil {
		return hs, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return hs, fmt.Errorf("send connect: %w", err)
	}

	for {
		p, err := readPacket(conn)
		if err != nil {
			return hs, fmt.Errorf("read connect ack: %w", err)
		}
		switch p.kind {
		case kindConnect:
			return hs, nil
		case kindConnectError:
			return hs, fmt.Errorf("%w: %s", ErrConnectRefused, connectErrorMessage(p.payload))
		case kindPing:
			if err := conn.WriteMessage(websocket.TextMessage, pongFrame); err != nil {
				return hs, fmt.Errorf("send pong: %w", err)
			}
		}
	}
}

func connectErrorMessage(raw json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}

func readPacket(conn *websocket.Conn) (packet, error) {
	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			return packet{}, err
		}
		if typ != websocket.TextMessage {
			continue
		}
		return decodePacket(msg)
	}
}

// run owns the read side: it reads until the connection drops, then
// reconnects unless the relay is closed.
func (r *Relay) run(conn *websocket.Conn, hs handshake) {
	defer close(r.done)

	for {
		err := r.readLoop(conn, hs)
		conn.Close()

		if r.ctx.Err() != nil {
			r.finish(ErrClosed)
			return
		}
		if errors.Is(err, ErrServerDisconnect) || r.opts.NoReconnect {
			r.logger.Warn("realtime connection ended", slog.String("error", err.Error()))
			r.cancel()
			r.finish(err)
			return
		}

		r.logger.Warn("realtime connection lost", slog.String("error", err.Error()))
		conn, hs, err = r.reconnect()
		if err != nil {
			r.cancel()
			r.finish(err)
			return
		}
	}
}

func (r *Relay) readLoop(conn *websocket.Conn, hs handshake) error {
	live := hs.liveness()
	for {
		if live > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(live))
		}
		p, err := readPacket(conn)
		if err != nil {
			if errors.Is(err, errMalformedPacket) {
				r.logger.Debug("dropping packet", slog.String("error", err.Error()))
				continue
			}
			return err
		}

		switch p.kind {
		case kindPing:
			if err := r.write(conn, pongFrame); err != nil {
				return err
			}
		case kindClose:
			return errors.New("engine.io close")
		case kindDisconnect:
			return ErrServerDisconnect
		case kindEvent:
			r.dispatch(p)
		}
	}
}

func (r *Relay) reconnect() (*websocket.Conn, handshake, error) {
	for attempt := 0; ; attempt++ {
		if limit := r.opts.MaxReconnectAttempts; limit > 0 && attempt >= limit {
			return nil, handshake{}, fmt.Errorf("realtime: gave up after %d reconnect attempts", attempt)
		}

		delay := r.opts.ReconnectDelay(attempt)
		select {
		case <-r.ctx.Done():
			return nil, handshake{}, ErrClosed
		case <-time.After(delay):
		}

		if r.opts.Reauth != nil {
			if err := r.opts.Reauth(r.ctx); err != nil && r.ctx.Err() == nil {
				r.logger.Warn("realtime reauth failed", slog.String("error", err.Error()))
			}
		}

		conn, hs, err := r.connect(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return nil, handshake{}, ErrClosed
			}
			level := slog.LevelDebug
			if errors.Is(err, ErrConnectRefused) {
				level = slog.LevelWarn
			}
			r.logger.Log(r.ctx, level, "reconnect failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}

		r.connMu.Lock()
		if r.ctx.Err() != nil {
			r.connMu.Unlock()
			conn.Close()
			return nil, handshake{}, ErrClosed
		}
		r.conn = conn
		r.connMu.Unlock()

		r.metrics.IncRealtimeReconnect()
		r.logger.Info("realtime reconnected", slog.Int("attempts", attempt+1))
		r.rejoin()
		return conn, hs, nil
	}
}

func (r *Relay) rejoin() {
	r.mu.Lock()
	channels := make([]Channel, 0, len(r.channels))
	for ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.Unlock()

	for _, ch := range channels {
		if err := r.emit("join", ch); err != nil {
			r.logger.Warn("rejoin failed",
				slog.String("database_id", ch.DatabaseID),
				slog.String("table_id", ch.TableID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (r *Relay) finish(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// write sends frame on conn if conn is still the current connection.
func (r *Relay) write(conn *websocket.Conn, frame []byte) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != conn {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// emit sends an event on the current connection.
func (r *Relay) emit(name string, args ...any) error {
	frame, err := encodeEvent(name, args...)
	if err != nil {
		return err
	}
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn == nil || r.ctx.Err() != nil {
		return ErrClosed
	}
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := r.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", name, err)
	}
	return nil
}

// Join subscribes the connection to ch. Joined channels are re-joined after a reconnect.
func (r *Relay) Join(ctx context.Context, ch Channel) error {
	if ch.DatabaseID == "" || ch.TableID == "" {
		return errChannelRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ctx.Err() != nil {
		return ErrClosed
	}
	r.mu.Lock()
	r.channels[ch] = struct{}{}
	r.mu.Unlock()

	if err := r.emit("join", ch); err != nil {
		// The channel stays recorded; a reconnect will join it.
		if errors.Is(err, ErrClosed) {
			return err
		}
		r.logger.Debug("join deferred to reconnect", slog.String("error", err.Error()))
	}
	return nil
}

// Leave unsubscribes the connection from ch.
func (r *Relay) Leave(ctx context.Context, ch Channel) error {
	if ch.DatabaseID == "" || ch.TableID == "" {
		return errChannelRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	_, joined := r.channels[ch]
	delete(r.channels, ch)
	r.mu.Unlock()
	if !joined {
		return nil
	}
	return r.emit("leave", ch)
}

// Channels returns the joined channels.
func (r *Relay) Channels() []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Channel, 0, len(r.channels))
	for ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// Subscription is a registered listener.
type Subscription struct {
	id string
	r  *Relay
}

// ID identifies the subscription.
func (s Subscription) ID() string { return s.id }

// Unsubscribe removes the listener. It is safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.r == nil {
		return
	}
	s.r.mu.Lock()
	delete(s.r.listeners, s.id)
	s.r.mu.Unlock()
}

// On registers h for event on ch. Empty channel fields match any value.
// Events whose payload names no database or table reach every listener of
// that event name.
func (r *Relay) On(ch Channel, event string, h Handler) Subscription {
	id := uuid.NewString()
	r.mu.Lock()
	r.listeners[id] = listener{channel: ch, event: event, handler: h}
	r.mu.Unlock()
	return Subscription{id: id, r: r}
}

func (r *Relay) dispatch(p packet) {
	ev := model.Event{Name: p.name, Data: p.payload}
	var scope struct {
		DatabaseID string `json:"database_id"`
		TableID    string `json:"table_id"`
	}
	if len(p.payload) > 0 && json.Unmarshal(p.payload, &scope) == nil {
		ev.DatabaseID, ev.TableID = scope.DatabaseID, scope.TableID
	}
	r.metrics.IncRealtimeEvent(ev.Name)

	r.mu.Lock()
	handlers := make([]Handler, 0, len(r.listeners))
	for _, l := range r.listeners {
		if l.event == ev.Name && l.matches(ev) {
			handlers = append(handlers, l.handler)
		}
	}
	r.mu.Unlock()

	for _, h := range handlers {
		r.deliver(h, ev)
	}
}

func (l listener) matches(ev model.Event) bool {
	if ev.DatabaseID != "" && l.channel.DatabaseID != "" && ev.DatabaseID != l.channel.DatabaseID {
		return false
	}
	if ev.TableID != "" && l.channel.TableID != "" && ev.TableID != l.channel.TableID {
		return false
	}
	return true
}

// Done is closed once the relay has stopped for good.
func (r *Relay) Done() <-chan struct{} { return r.done }

// Err reports why the relay stopped, or nil while it runs.
func (r *Relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close disconnects and waits for the reader to exit. Called from a Handler,
// it does not wait, since the reader is the caller.
func (r *Relay) Close() error {
	r.cancel()

	r.connMu.Lock()
	if r.conn != nil {
		_ = r.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = r.conn.WriteMessage(websocket.TextMessage, disconnectFrame)
		_ = r.conn.Close()
	}
	r.connMu.Unlock()

	if r.delivering.Load() {
		return nil
	}
	<-r.done
	return nil
}
