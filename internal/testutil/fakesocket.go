package testutil

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

const fakeOpenFrame = `0{"sid":"fake-eio","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`

// fakeEvent is a socket.io event the fake sends back on join.
type fakeEvent struct {
	name    string
	payload map[string]any
}

// EmitOnJoin makes the socket endpoint send event with payload to a client
// in the same write loop that reads its join, before anything else.
func (f *FakeServer) EmitOnJoin(event string, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onJoin = append(f.onJoin, fakeEvent{name: event, payload: payload})
}

// Joins counts join packets received on the socket endpoint.
func (f *FakeServer) Joins() int64 { return f.joins.Load() }

// socket is a minimal socket.io v5 endpoint over engine.io v4 websockets.
// Clients must present a live access token in the connect auth payload.
func (f *FakeServer) socket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "bad transport", http.StatusBadRequest)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(fakeOpenFrame)); err != nil {
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

	f.mu.Lock()
	_, ok := f.access[auth.Token]
	f.mu.Unlock()
	if !ok {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`44{"message":"unauthorized"}`))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"fake-sio"}`)); err != nil {
		return
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !strings.HasPrefix(string(msg), `42["join"`) {
			continue
		}
		f.joins.Add(1)

		f.mu.Lock()
		events := append([]fakeEvent(nil), f.onJoin...)
		f.mu.Unlock()
		for _, ev := range events {
			frame, err := json.Marshal([]any{ev.name, ev.payload})
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, append([]byte("42"), frame...)); err != nil {
				return
			}
		}
	}
}
