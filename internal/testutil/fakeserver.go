package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Collections served by FakeServer, mapped to the query parameter that
// scopes them.
var fakeCollections = map[string]string{
	"auth/users": "",
	"database":   "",
	"tables":     "database_id",
	"ref":        "table_id",
	"storage":    "database_id",
	"buckets":    "storage_id",
	"files":      "bucket_id",
}

type fakeDoc struct {
	scope string
	doc   map[string]any
}

type fakeUser struct {
	password string
	uid      string
}

// FakeServer is an in-memory stand-in for the Sodular REST API.
//
// It issues opaque tokens, answers 401 for unknown or expired access tokens,
// and stores documents per collection. Filters support equality on uid and
// data.<field>. A socket.io endpoint is served at /socket.io/.
type FakeServer struct {
	*httptest.Server

	mu          sync.Mutex
	users       map[string]fakeUser
	access      map[string]string // access token -> user uid
	refresh     map[string]string // refresh token -> user uid
	collections map[string]map[string]*fakeDoc
	blobs       map[string][]byte
	failRefresh bool
	rotate      bool

	upgrader websocket.Upgrader
	onJoin   []fakeEvent

	refreshCalls atomic.Int64
	unauthorized atomic.Int64
	joins        atomic.Int64
}

// NewFakeServer starts a fake API and closes it when t finishes.
func NewFakeServer(t testing.TB) *FakeServer {
	t.Helper()
	f := &FakeServer{
		users:       make(map[string]fakeUser),
		access:      make(map[string]string),
		refresh:     make(map[string]string),
		collections: make(map[string]map[string]*fakeDoc),
		blobs:       make(map[string][]byte),
		rotate:      true,
	}
	for name := range fakeCollections {
		f.collections[name] = make(map[string]*fakeDoc)
	}

	r := chi.NewRouter()
	r.Get("/socket.io/", f.socket)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", f.login)
		r.Post("/auth/register", f.register)
		r.Post("/auth/refresh-token", f.refreshToken)

		r.Group(func(r chi.Router) {
			r.Use(f.requireAuth)
			r.Post("/auth/logout", f.logout)
			r.Get("/auth/me", f.me)
			r.Post("/files/upload", f.upload)
			r.Get("/files/download", f.download)
			for name := range fakeCollections {
				f.mountCollection(r, name)
			}
		})
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the API root to pass to client.New.
func (f *FakeServer) BaseURL() string { return f.Server.URL + "/api/v1" }

// AddUser registers an account directly.
func (f *FakeServer) AddUser(email, password string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(email, password, nil)
}

func (f *FakeServer) addUserLocked(email, password string, data map[string]any) string {
	if data == nil {
		data = map[string]any{}
	}
	data["email"] = email
	delete(data, "password")
	doc := newFakeDoc(data)
	uid := doc["uid"].(string)
	f.users[email] = fakeUser{password: password, uid: uid}
	f.collections["auth/users"][uid] = &fakeDoc{doc: doc}
	return uid
}

// ExpireAccessTokens invalidates every issued access token.
func (f *FakeServer) ExpireAccessTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = make(map[string]string)
}

// IssueTokens returns a fresh pair for the user with email.
func (f *FakeServer) IssueTokens(email string) (access, refresh string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueLocked(f.users[email].uid)
}

// FailRefresh makes the refresh endpoint answer 401.
func (f *FakeServer) FailRefresh(fail bool) {
	f.mu.Lock()
	f.failRefresh = fail
	f.mu.Unlock()
}

// RotateRefreshTokens controls whether refresh issues a new refresh token.
func (f *FakeServer) RotateRefreshTokens(rotate bool) {
	f.mu.Lock()
	f.rotate = rotate
	f.mu.Unlock()
}

// RefreshCalls counts calls to the refresh endpoint.
func (f *FakeServer) RefreshCalls() int64 { return f.refreshCalls.Load() }

// Unauthorized counts 401 answers on authenticated routes.
func (f *FakeServer) Unauthorized() int64 { return f.unauthorized.Load() }

// Blob returns the bytes stored for a file uid.
func (f *FakeServer) Blob(uid string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blobs[uid]
}

// Count returns the number of live documents in a collection.
func (f *FakeServer) Count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.collections[collection])
}

func (f *FakeServer) issueLocked(uid string) (string, string) {
	access := "at_" + uuid.NewString()
	refresh := "rt_" + uuid.NewString()
	f.access[access] = uid
	f.refresh[refresh] = uid
	return access, refresh
}

func (f *FakeServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		uid, ok := f.access[tok]
		f.mu.Unlock()
		if tok == "" || !ok {
			f.unauthorized.Add(1)
			writeFakeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		r.Header.Set("X-Fake-User", uid)
		next.ServeHTTP(w, r)
	})
}

func (f *FakeServer) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeFakeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[in.Email]
	if !ok || u.password != in.Password {
		writeFakeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	access, refresh := f.issueLocked(u.uid)
	writeFakeData(w, http.StatusOK, map[string]any{
		"user":   f.collections["auth/users"][u.uid].doc,
		"tokens": map[string]string{"accessToken": access, "refreshToken": refresh},
	})
}

func (f *FakeServer) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Data == nil {
		writeFakeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	email, _ := in.Data["email"].(string)
	password, _ := in.Data["password"].(string)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[email]; exists {
		writeFakeError(w, http.StatusConflict, "email already registered")
		return
	}
	uid := f.addUserLocked(email, password, in.Data)
	access, refresh := f.issueLocked(uid)
	writeFakeData(w, http.StatusCreated, map[string]any{
		"user":   f.collections["auth/users"][uid].doc,
		"tokens": map[string]string{"accessToken": access, "refreshToken": refresh},
	})
}

func (f *FakeServer) refreshToken(w http.ResponseWriter, r *http.Request) {
	f.refreshCalls.Add(1)
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.refresh[in.RefreshToken]
	if f.failRefresh || !ok {
		writeFakeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	access := "at_" + uuid.NewString()
	f.access[access] = uid
	out := map[string]string{"accessToken": access}
	if f.rotate {
		delete(f.refresh, in.RefreshToken)
		next := "rt_" + uuid.NewString()
		f.refresh[next] = uid
		out["refreshToken"] = next
	}
	writeFakeData(w, http.StatusOK, out)
}

func (f *FakeServer) logout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	delete(f.access, tok)
	delete(f.refresh, in.RefreshToken)
	f.mu.Unlock()
	writeFakeData(w, http.StatusOK, nil)
}

func (f *FakeServer) me(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.collections["auth/users"][r.Header.Get("X-Fake-User")]
	if !ok {
		writeFakeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeFakeData(w, http.StatusOK, d.doc)
}

func (f *FakeServer) mountCollection(r chi.Router, name string) {
	scopeKey := fakeCollections[name]
	scopeOf := func(r *http.Request) string {
		if scopeKey == "" {
			return ""
		}
		return r.URL.Query().Get(scopeKey)
	}

	r.Get("/"+name, func(w http.ResponseWriter, r *http.Request) {
		f.list(w, r, name, scopeOf(r))
	})
	r.Post("/"+name, func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Data map[string]any `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Data == nil {
			writeFakeError(w, http.StatusBadRequest, "data is required")
			return
		}
		if scopeKey != "" && scopeOf(r) == "" {
			writeFakeError(w, http.StatusBadRequest, scopeKey+" is required")
			return
		}
		doc := newFakeDoc(in.Data)
		f.mu.Lock()
		f.collections[name][doc["uid"].(string)] = &fakeDoc{scope: scopeOf(r), doc: doc}
		f.mu.Unlock()
		writeFakeData(w, http.StatusCreated, doc)
	})
	r.Get("/"+name+"/{uid}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		d, ok := f.collections[name][chi.URLParam(r, "uid")]
		if !ok || (scopeKey != "" && scopeOf(r) != "" && d.scope != scopeOf(r)) {
			writeFakeError(w, http.StatusNotFound, "not found")
			return
		}
		writeFakeData(w, http.StatusOK, d.doc)
	})
	update := func(merge bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var in struct {
				Data map[string]any `json:"data"`
			}
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Data == nil {
				writeFakeError(w, http.StatusBadRequest, "data is required")
				return
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			d, ok := f.collections[name][chi.URLParam(r, "uid")]
			if !ok {
				writeFakeError(w, http.StatusNotFound, "not found")
				return
			}
			data := in.Data
			if merge {
				data = d.doc["data"].(map[string]any)
				for k, v := range in.Data {
					data[k] = v
				}
			}
			d.doc["data"] = data
			d.doc["updatedAt"] = time.Now().UnixMilli()
			writeFakeData(w, http.StatusOK, d.doc)
		}
	}
	r.Patch("/"+name+"/{uid}", update(true))
	r.Put("/"+name+"/{uid}", update(false))
	r.Delete("/"+name+"/{uid}", func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "uid")
		f.mu.Lock()
		defer f.mu.Unlock()
		d, ok := f.collections[name][uid]
		if !ok {
			writeFakeError(w, http.StatusNotFound, "not found")
			return
		}
		delete(f.collections[name], uid)
		delete(f.blobs, uid)
		writeFakeData(w, http.StatusOK, d.doc)
	})
}

func (f *FakeServer) list(w http.ResponseWriter, r *http.Request, name, scope string) {
	q := r.URL.Query()
	var filter map[string]any
	if raw := q.Get("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			writeFakeError(w, http.StatusBadRequest, "filter must be a JSON object")
			return
		}
	}
	var sortSpec map[string]int
	if raw := q.Get("sort"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sortSpec); err != nil {
			writeFakeError(w, http.StatusBadRequest, "sort must be a JSON object")
			return
		}
	}

	f.mu.Lock()
	matched := make([]map[string]any, 0)
	for _, d := range f.collections[name] {
		if scope != "" && d.scope != scope {
			continue
		}
		if matchFilter(d.doc, filter) {
			matched = append(matched, d.doc)
		}
	}
	f.mu.Unlock()

	desc := false
	for _, v := range sortSpec {
		desc = v < 0
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i]["createdAt"].(int64), matched[j]["createdAt"].(int64)
		if a == b {
			return matched[i]["uid"].(string) < matched[j]["uid"].(string)
		}
		if desc {
			return a > b
		}
		return a < b
	})

	total := len(matched)
	skip, _ := strconv.Atoi(q.Get("skip"))
	if skip > len(matched) {
		skip = len(matched)
	}
	matched = matched[skip:]
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	writeFakeData(w, http.StatusOK, map[string]any{"list": matched, "total": total})
}

func (f *FakeServer) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeFakeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	bucket := r.FormValue("bucket_id")
	file, header, err := r.FormFile("file")
	if err != nil || bucket == "" {
		writeFakeError(w, http.StatusBadRequest, "file and bucket_id are required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeFakeError(w, http.StatusBadRequest, "read file")
		return
	}

	doc := newFakeDoc(map[string]any{
		"filename":   header.Filename,
		"mimeType":   header.Header.Get("Content-Type"),
		"size":       len(content),
		"bucket_id":  bucket,
		"storage_id": r.FormValue("storage_id"),
	})
	uid := doc["uid"].(string)
	f.mu.Lock()
	f.collections["files"][uid] = &fakeDoc{scope: bucket, doc: doc}
	f.blobs[uid] = content
	f.mu.Unlock()
	writeFakeData(w, http.StatusCreated, doc)
}

func (f *FakeServer) download(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	content, ok := f.blobs[r.URL.Query().Get("file_id")]
	f.mu.Unlock()
	if !ok {
		writeFakeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

var fakeClock atomic.Int64

func newFakeDoc(data map[string]any) map[string]any {
	// Strictly increasing timestamps keep createdAt ordering deterministic.
	now := time.Now().UnixMilli()
	for {
		prev := fakeClock.Load()
		if now <= prev {
			now = prev + 1
		}
		if fakeClock.CompareAndSwap(prev, now) {
			break
		}
	}
	return map[string]any{
		"uid":       uuid.NewString(),
		"data":      data,
		"createdAt": now,
		"updatedAt": now,
		"isDeleted": false,
	}
}

func matchFilter(doc map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		var got any
		switch {
		case key == "uid":
			got = doc["uid"]
		case strings.HasPrefix(key, "data."):
			data, _ := doc["data"].(map[string]any)
			got = data[strings.TrimPrefix(key, "data.")]
		default:
			got = doc[key]
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func writeFakeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeFakeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
