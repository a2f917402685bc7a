// Package mobile exposes the session core to gomobile bindings. Only
// gomobile-friendly types cross the boundary: strings, bools, errors and
// callback interfaces. Structured results are JSON.
package mobile

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/harrylevesque/firenet/internal/api"
	"github.com/harrylevesque/firenet/internal/app"
	"github.com/harrylevesque/firenet/internal/config"
	"github.com/harrylevesque/firenet/internal/push"
	"github.com/harrylevesque/firenet/internal/statussync"
	"github.com/harrylevesque/firenet/internal/workers"
)

// Callback receives the JSON result of an asynchronous call. The host is
// responsible for hopping to its UI thread.
type Callback interface {
	OnResult(resultJSON string)
}

// HardwareIDSource supplies the platform identifier, e.g. ANDROID_ID.
type HardwareIDSource interface {
	HardwareID() string
}

// Transport stops the VPN tunnel on remote logout.
type Transport interface {
	Stop()
}

type hardwareID struct{ src HardwareIDSource }

func (h hardwareID) HardwareID() (string, error) { return h.src.HardwareID(), nil }

// Session is one opened core.
type Session struct {
	app *app.App

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Open loads configPath and builds the core. hw and tr may be nil.
func Open(configPath string, hw HardwareIDSource, tr Transport) (*Session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	opts := app.Options{Deliver: workers.Inline{}}
	if hw != nil {
		opts.HardwareID = hardwareID{src: hw}
	}
	if tr != nil {
		opts.Transport = tr
	}
	a, err := app.New(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Session{app: a}, nil
}

type loginResult struct {
	Username string `json:"username,omitempty"`
	Error    string `json:"error,omitempty"`
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"encode failed"}`
	}
	return string(b)
}

// Login signs in and reports {"username"} or {"error"}.
func (s *Session) Login(username, password string, cb Callback) {
	s.app.Service.LoginAsync(username, password, func(_ string, err error) {
		r := loginResult{Username: strings.TrimSpace(username)}
		if err != nil {
			r = loginResult{Error: err.Error()}
		}
		cb.OnResult(encode(r))
	})
}

// Status syncs with the stored token and reports the outcome view.
func (s *Session) Status(cb Callback) {
	token := s.app.Session.Token()
	if token == "" {
		cb.OnResult(encode(api.NewOutcomeView(s.app.Service.Refresh(context.Background()))))
		return
	}
	s.app.Service.StatusAsync(token, func(o statussync.Outcome) {
		cb.OnResult(encode(api.NewOutcomeView(o)))
	})
}

// Logout clears local state and revokes the session best-effort. The
// result is always {}.
func (s *Session) Logout(cb Callback) {
	s.app.Service.LogoutAsync(s.app.Session.Token(), func() {
		if cb != nil {
			cb.OnResult("{}")
		}
	})
}

// RegisterPushToken registers token in the background and reports {} or {"error"}.
func (s *Session) RegisterPushToken(token string, cb Callback) {
	go func() {
		res := "{}"
		if err := s.app.Service.RegisterPushToken(context.Background(), token); err != nil {
			res = encode(map[string]string{"error": err.Error()})
		}
		if cb != nil {
			cb.OnResult(res)
		}
	}()
}

// HandlePush processes a push data payload and returns what was done.
func (s *Session) HandlePush(payloadJSON string) (string, error) {
	data, err := push.DecodePayload([]byte(payloadJSON))
	if err != nil {
		return "", err
	}
	return s.app.Push.Handle(data).String(), nil
}

// UpdatePromptSeen acknowledges the update prompt.
func (s *Session) UpdatePromptSeen() error {
	return s.app.Service.UpdatePromptSeen(context.Background(), s.app.Session.Token())
}

// ReportAppUpdate reports the app version unless already reported.
func (s *Session) ReportAppUpdate() (bool, error) {
	return s.app.Service.ReportAppUpdateIfNeeded(context.Background(), s.app.Session.Token())
}

// DeviceID returns the identity sent at login.
func (s *Session) DeviceID() string {
	return s.app.Service.DeviceID()
}

// State returns the UI state snapshot as JSON.
func (s *Session) State() string {
	return encode(s.app.Board.Snapshot())
}

// Notices drains queued notices as a JSON array.
func (s *Session) Notices() string {
	return encode(s.app.Board.Drain())
}

// Start runs the refresher and push listener until Stop.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = s.app.RunBackground(ctx)
	}(s.done)
}

// Stop ends background work started by Start and waits for it.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Close stops background work and releases the core.
func (s *Session) Close() error {
	s.Stop()
	return s.app.Close()
}
