package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/firenet/internal/api"
	"github.com/harrylevesque/firenet/internal/config"
	"github.com/harrylevesque/firenet/internal/device"
	"github.com/harrylevesque/firenet/internal/utils"
	"github.com/harrylevesque/firenet/internal/workers"
)

// remote is a stand-in for the account service.
type remote struct {
	mu        sync.Mutex
	deviceIDs []string
	status    atomic.Int32
	logouts   atomic.Int32
	// html makes error replies an HTML page, as a fronting proxy sends.
	html atomic.Bool
	// gate, when set, holds /api/status until closed. entered is signalled first.
	gate    chan struct{}
	entered chan struct{}
}

func (r *remote) hold() (release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	r.entered = make(chan struct{}, 1)
	gate := r.gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func newRemote(t *testing.T) (*httptest.Server, *remote) {
	t.Helper()
	r := &remote{}
	r.status.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			DeviceID string `json:"device_id"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		r.mu.Lock()
		r.deviceIDs = append(r.deviceIDs, body.DeviceID)
		r.mu.Unlock()
		_, _ = w.Write([]byte(`{"token":"tok-1"}`))
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		gate, entered := r.gate, r.entered
		r.mu.Unlock()
		if gate != nil {
			entered <- struct{}{}
			<-gate
		}
		code := int(r.status.Load())
		if code != http.StatusOK {
			w.WriteHeader(code)
			if r.html.Load() {
				_, _ = w.Write([]byte(`<html><title>` + http.StatusText(code) + `</title></html>`))
				return
			}
			_, _ = w.Write([]byte(`{"message":"service suspended"}`))
			return
		}
		_, _ = w.Write([]byte(`{"username":"alice","used_traffic":40,"data_limit":100,"expire":null}`))
	})
	mux.HandleFunc("/api/logout", func(w http.ResponseWriter, req *http.Request) {
		r.logouts.Add(1)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, r
}

func testConfig(t *testing.T, dir, domain string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		App:     config.AppConfig{Name: "Firenet", Version: "1.0.0", Platform: "android", DeviceModel: "Pixel 7"},
		Remote:  config.RemoteConfig{Domains: []string{domain}, AttemptTimeout: 2 * time.Second},
		Sync:    config.SyncConfig{Deadline: 5 * time.Second},
		Storage: config.StorageConfig{Backend: config.BackendFile, Dir: dir},
		Secure:  config.SecureConfig{GenerateKey: true},
		Workers: config.WorkersConfig{MaxConcurrent: 2},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func testOptions() Options {
	return Options{
		HardwareID: device.HardwareIDFunc(func() (string, error) { return "hw-1", nil }),
		Deliver:    workers.Inline{},
		Logger:     utils.Discard(),
	}
}

func call(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func state(t *testing.T, h http.Handler) api.Snapshot {
	t.Helper()
	var s api.Snapshot
	require.NoError(t, json.Unmarshal(call(t, h, "GET", "/state", "").Body.Bytes(), &s))
	return s
}

func TestApp_SessionLifecycle(t *testing.T) {
	srv, _ := newRemote(t)
	dir := t.TempDir()
	cfg := testConfig(t, dir, srv.URL)

	a, err := New(cfg, testOptions())
	require.NoError(t, err)
	defer a.Close()
	h := a.Handler()

	assert.Equal(t, api.StateSignedOut, state(t, h).State)

	rec := call(t, h, "POST", "/login", `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "tok-1", a.Session.Token())
	assert.Equal(t, api.StateAuthenticated, state(t, h).State)

	rec = call(t, h, "GET", "/status", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v api.OutcomeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "success", v.Outcome)
	require.NotNil(t, v.RemainingTraffic)
	assert.Equal(t, int64(60), *v.RemainingTraffic)

	cached, ok := a.Cache.Load()
	require.True(t, ok)
	assert.Equal(t, "alice", cached.Username)

	raw, err := os.ReadFile(filepath.Join(dir, "secure", "secure_prefs.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "alice", "the status cache is sealed at rest")

	rec = call(t, h, "POST", "/push", `{"data":{"action":"FORCE_LOGOUT"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"invalidated"}`, rec.Body.String())

	assert.Empty(t, a.Session.Token())
	_, ok = a.Cache.Load()
	assert.False(t, ok)
	s := state(t, h)
	assert.Equal(t, api.StateSignedOut, s.State)
	assert.Equal(t, 1, s.Pending)

	rec = call(t, h, "GET", "/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApp_SuspensionDropsCache(t *testing.T) {
	srv, r := newRemote(t)
	a, err := New(testConfig(t, t.TempDir(), srv.URL), testOptions())
	require.NoError(t, err)
	defer a.Close()
	h := a.Handler()

	require.Equal(t, http.StatusOK, call(t, h, "POST", "/login", `{"username":"alice","password":"pw"}`).Code)
	require.Equal(t, http.StatusOK, call(t, h, "GET", "/status", "").Code)

	r.status.Store(http.StatusForbidden)
	rec := call(t, h, "GET", "/status", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	_, ok := a.Cache.Load()
	assert.False(t, ok)
	assert.Equal(t, api.StateSuspended, state(t, h).State)
	assert.Equal(t, "tok-1", a.Session.Token(), "suspension keeps the session")
}

func TestApp_LogoutAndIdentitySurvivesRestart(t *testing.T) {
	srv, r := newRemote(t)
	dir := t.TempDir()
	cfg := testConfig(t, dir, srv.URL)

	a, err := New(cfg, Options{Deliver: workers.Inline{}, Logger: utils.Discard(),
		HardwareID: device.HardwareIDFunc(func() (string, error) { return device.DefectiveHardwareID, nil })})
	require.NoError(t, err)
	h := a.Handler()
	first := a.Service.DeviceID()
	assert.True(t, strings.HasPrefix(first, "legacy:"), first)

	require.Equal(t, http.StatusOK, call(t, h, "POST", "/login", `{"username":"alice","password":"pw"}`).Code)
	assert.Equal(t, http.StatusNoContent, call(t, h, "POST", "/logout", "").Code)
	assert.Empty(t, a.Session.Token())
	assert.Equal(t, int32(1), r.logouts.Load())
	assert.Equal(t, first, a.Service.DeviceID(), "logout keeps the device identity")
	require.NoError(t, a.Close())

	b, err := New(cfg, Options{Deliver: workers.Inline{}, Logger: utils.Discard(),
		HardwareID: device.HardwareIDFunc(func() (string, error) { return "", nil })})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, first, b.Service.DeviceID())

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.deviceIDs, 1)
	assert.Equal(t, first, r.deviceIDs[0])
}

func TestApp_RestoresSignedInState(t *testing.T) {
	srv, _ := newRemote(t)
	cfg := testConfig(t, t.TempDir(), srv.URL)

	a, err := New(cfg, testOptions())
	require.NoError(t, err)
	_, err = a.Service.Login(t.Context(), "alice", "pw")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := New(cfg, testOptions())
	require.NoError(t, err)
	defer b.Close()
	s := b.Board.Snapshot()
	assert.Equal(t, api.StateAuthenticated, s.State)
	assert.Equal(t, "alice", s.Username)
}

func TestApp_MemoryBackend(t *testing.T) {
	srv, _ := newRemote(t)
	cfg := testConfig(t, t.TempDir(), srv.URL)
	cfg.Storage.Backend = config.BackendMemory

	a, err := New(cfg, testOptions())
	require.NoError(t, err)
	defer a.Close()
	assert.NoFileExists(t, cfg.Secure.MasterKeyFile)
	assert.True(t, strings.HasPrefix(a.Service.DeviceID(), "stable:hw-1:"))
}

func TestApp_ForceLogoutDuringStatus(t *testing.T) {
	srv, r := newRemote(t)
	a, err := New(testConfig(t, t.TempDir(), srv.URL), testOptions())
	require.NoError(t, err)
	defer a.Close()
	h := a.Handler()

	require.Equal(t, http.StatusOK, call(t, h, "POST", "/login", `{"username":"alice","password":"pw"}`).Code)

	release := r.hold()
	defer release()
	result := make(chan *httptest.ResponseRecorder, 1)
	go func() { result <- call(t, h, "GET", "/status", "") }()
	<-r.entered

	rec := call(t, h, "POST", "/push", `{"data":{"action":"FORCE_LOGOUT"}}`)
	require.JSONEq(t, `{"result":"invalidated"}`, rec.Body.String())
	require.Equal(t, api.StateSignedOut, state(t, h).State)

	release()
	rec = <-result
	assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())

	assert.Equal(t, api.StateSignedOut, state(t, h).State, "a late success must not sign the UI back in")
	assert.Empty(t, a.Session.Token())
	_, ok := a.Cache.Load()
	assert.False(t, ok, "a late success must not recreate the wiped cache")
}

func TestApp_BareErrorPages(t *testing.T) {
	srv, r := newRemote(t)
	a, err := New(testConfig(t, t.TempDir(), srv.URL), testOptions())
	require.NoError(t, err)
	defer a.Close()
	h := a.Handler()

	require.Equal(t, http.StatusOK, call(t, h, "POST", "/login", `{"username":"alice","password":"pw"}`).Code)
	require.Equal(t, http.StatusOK, call(t, h, "GET", "/status", "").Code)
	_, ok := a.Cache.Load()
	require.True(t, ok)

	r.html.Store(true)
	r.status.Store(http.StatusForbidden)
	rec := call(t, h, "GET", "/status", "")
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, api.StateSuspended, state(t, h).State)
	_, ok = a.Cache.Load()
	assert.False(t, ok, "a suspension is never masked by the cache")

	r.status.Store(http.StatusUnauthorized)
	rec = call(t, h, "GET", "/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
	assert.Empty(t, a.Session.Token())
	assert.Equal(t, api.StateSignedOut, state(t, h).State)
}
