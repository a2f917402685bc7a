// Package auth exposes the session operations used by the UI layer, on top
// of the session client, the synchronizer and the local stores.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harrylevesque/firenet/internal/client"
	"github.com/harrylevesque/firenet/internal/models"
	"github.com/harrylevesque/firenet/internal/prefs"
	"github.com/harrylevesque/firenet/internal/statussync"
)

const keyLastReportedVersion = "last_reported_app_version"

// Remote is the set of server calls the service needs.
type Remote interface {
	Login(ctx context.Context, creds client.Credentials) (string, error)
	KeepAlive(ctx context.Context, token string) error
	Logout(ctx context.Context, token string) error
	UpdatePromptSeen(ctx context.Context, token string) error
	RegisterDeviceToken(ctx context.Context, token, pushToken string) error
	ReportUpdate(ctx context.Context, token, platform, version string) error
}

// IdentityResolver supplies the device identity sent at login.
type IdentityResolver interface {
	Resolve() string
}

// Syncer runs status synchronization.
type Syncer interface {
	Start(token string, cb func(statussync.Outcome))
	Sync(ctx context.Context, token string) statussync.Outcome
}

// Sink observes session state changes, usually the UI state.
type Sink interface {
	SignedIn(username string)
	StatusChanged(o statussync.Outcome)
	SignedOut(reason string)
}

// Config wires a Service.
type Config struct {
	Remote     Remote
	Session    *SessionStore
	Sync       Syncer
	Device     IdentityResolver
	AppPrefs   prefs.Group
	Secure     statussync.StateWiper
	Sink       Sink
	Pool       statussync.Submitter
	Deliver    statussync.Deliverer
	AppVersion string
	Platform   string
	Logger     *slog.Logger
	// PushRetryDelay overrides the wait before retrying a push token registration.
	PushRetryDelay time.Duration
}

// Service implements login, status, logout and the side actions.
type Service struct {
	remote     Remote
	session    *SessionStore
	sync       Syncer
	device     IdentityResolver
	appPrefs   prefs.Group
	secure     statussync.StateWiper
	sink       Sink
	pool       statussync.Submitter
	deliver    statussync.Deliverer
	appVersion string
	platform   string
	logger     *slog.Logger

	pushRetryDelay time.Duration
}

type nopSink struct{}

func (nopSink) SignedIn(string)                  {}
func (nopSink) StatusChanged(statussync.Outcome) {}
func (nopSink) SignedOut(string)                 {}

type goSubmitter struct{}

func (goSubmitter) Submit(_ context.Context, fn func()) error {
	go fn()
	return nil
}

type inline struct{}

func (inline) Go(fn func()) { fn() }

// NewService builds a Service.
func NewService(cfg Config) *Service {
	s := &Service{
		remote:     cfg.Remote,
		session:    cfg.Session,
		sync:       cfg.Sync,
		device:     cfg.Device,
		appPrefs:   cfg.AppPrefs,
		secure:     cfg.Secure,
		sink:       cfg.Sink,
		pool:       cfg.Pool,
		deliver:    cfg.Deliver,
		appVersion: cfg.AppVersion,
		platform:   cfg.Platform,
		logger:     cfg.Logger,

		pushRetryDelay: cfg.PushRetryDelay,
	}
	if s.sink == nil {
		s.sink = nopSink{}
	}
	if s.pool == nil {
		s.pool = goSubmitter{}
	}
	if s.deliver == nil {
		s.deliver = inline{}
	}
	if s.appVersion == "" {
		s.appVersion = "0.0.0"
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Session returns the session store.
func (s *Service) Session() *SessionStore { return s.session }

// DeviceID returns the device identity sent at login.
func (s *Service) DeviceID() string { return s.device.Resolve() }

// background runs fn on the pool. The caller never waits for a free slot.
func (s *Service) background(fn func(ctx context.Context)) {
	run := func() { fn(context.Background()) }
	go func() {
		if err := s.pool.Submit(context.Background(), run); err != nil {
			s.logger.Warn("submit failed, running unpooled", "err", err)
			run()
		}
	}()
}

// async runs fn in the background and hands the callback it returns to the deliverer.
func (s *Service) async(fn func(ctx context.Context) func()) {
	s.background(func(ctx context.Context) {
		s.deliver.Go(fn(ctx))
	})
}

// Status runs one sync for token and reports the outcome to the sink.
func (s *Service) Status(ctx context.Context, token string) statussync.Outcome {
	o := s.sync.Sync(ctx, token)
	s.observe(token, o)
	return o
}

// StatusAsync runs one sync and calls cb exactly once with the outcome.
func (s *Service) StatusAsync(token string, cb func(statussync.Outcome)) {
	s.sync.Start(token, func(o statussync.Outcome) {
		s.observe(token, o)
		if cb != nil {
			cb(o)
		}
	})
}

// Refresh syncs with the stored token. Without a stored session it
// returns a Failure wrapping ErrNotLoggedIn.
func (s *Service) Refresh(ctx context.Context) statussync.Outcome {
	token := s.session.Token()
	if token == "" {
		return statussync.Outcome{Kind: statussync.KindFailure, Err: ErrNotLoggedIn}
	}
	return s.Status(ctx, token)
}

func (s *Service) observe(token string, o statussync.Outcome) {
	s.sink.StatusChanged(o)
	switch o.Kind {
	case statussync.KindSessionInvalid:
		s.sink.SignedOut("session invalid")
	case statussync.KindSuccess:
		// The prompt is acknowledged once it has been handed to the UI.
		if !o.Cached && o.Status.UpdatePrompt() != models.UpdateNone {
			s.background(func(ctx context.Context) {
				if err := s.remote.UpdatePromptSeen(ctx, token); err != nil {
					s.logger.Warn("update prompt ack failed", "err", err)
				}
			})
		}
	}
}

// Logout clears the local session first, then revokes it remotely on a
// best-effort basis. It never fails from the caller's point of view.
func (s *Service) Logout(ctx context.Context, token string) {
	if err := s.session.Clear(); err != nil {
		s.logger.Error("session clear failed", "err", err)
	}
	if s.secure != nil {
		if err := s.secure.ClearAll(); err != nil {
			s.logger.Error("secure state wipe failed", "err", err)
		}
	}
	s.sink.SignedOut("logout")

	if token == "" {
		return
	}
	if err := s.remote.Logout(ctx, token); err != nil {
		s.logger.Warn("remote logout failed", "err", err)
	}
}

// LogoutAsync runs Logout in the background and then calls cb.
func (s *Service) LogoutAsync(token string, cb func()) {
	s.async(func(ctx context.Context) func() {
		s.Logout(ctx, token)
		return func() {
			if cb != nil {
				cb()
			}
		}
	})
}

// UpdatePromptSeen acknowledges the update prompt.
func (s *Service) UpdatePromptSeen(ctx context.Context, token string) error {
	return s.remote.UpdatePromptSeen(ctx, token)
}

// KeepAlive pings the service with the stored token. Without a session it does nothing.
func (s *Service) KeepAlive(ctx context.Context) error {
	token := s.session.Token()
	if token == "" {
		return nil
	}
	return s.remote.KeepAlive(ctx, token)
}

// ReportAppUpdateIfNeeded reports the app version unless it was already
// reported. It returns whether a report was sent.
func (s *Service) ReportAppUpdateIfNeeded(ctx context.Context, token string) (bool, error) {
	last, ok, err := s.appPrefs.Get(keyLastReportedVersion)
	if err != nil {
		return false, fmt.Errorf("read last reported version: %w", err)
	}
	if ok && last == s.appVersion {
		return false, nil
	}
	if err := s.remote.ReportUpdate(ctx, token, s.platform, s.appVersion); err != nil {
		return false, err
	}
	if err := prefs.SetString(s.appPrefs, keyLastReportedVersion, s.appVersion); err != nil {
		s.logger.Warn("persist reported version failed", "version", s.appVersion, "err", err)
	}
	return true, nil
}
