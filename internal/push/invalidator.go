// Package push handles out-of-band messages from the service: remote
// session invalidation and display-only notices.
package push

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harrylevesque/firenet/internal/metrics"
	"github.com/harrylevesque/firenet/internal/transport"
)

const (
	// ActionKey is the reserved payload key naming a system action.
	ActionKey = "action"
	// ActionForceLogout triggers remote session invalidation.
	ActionForceLogout = "FORCE_LOGOUT"

	forceLogoutBody = "Your session was closed by an administrator. Please sign in again."
)

// Notice kinds.
const (
	NoticeForceLogout = "force_logout"
	NoticeMessage     = "message"
)

// Notice is a user-visible message.
type Notice struct {
	Kind  string    `json:"kind"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Link  string    `json:"link,omitempty"`
	At    time.Time `json:"at"`
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(n Notice) error
}

// StateSink moves the UI to the signed-out state.
type StateSink interface {
	SignedOut(reason string)
}

// Wiper erases the local encrypted state.
type Wiper interface {
	ClearAll() error
}

// SessionClearer erases the stored session credential.
type SessionClearer interface {
	Clear() error
}

// InvalidatorConfig wires an Invalidator.
type InvalidatorConfig struct {
	Secure    Wiper
	Session   SessionClearer
	Transport transport.Stopper
	Notifier  Notifier
	Sink      StateSink
	AppName   string
	Logger    *slog.Logger
}

// Invalidator wipes all local session state on a remote force logout.
type Invalidator struct {
	cfg InvalidatorConfig
	mu  sync.Mutex
}

// NewInvalidator builds an Invalidator.
func NewInvalidator(cfg InvalidatorConfig) *Invalidator {
	if cfg.Transport == nil {
		cfg.Transport = transport.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Invalidator{cfg: cfg}
}

// Invalidate clears the session and the encrypted state, stops the
// transport, notifies the user and signs the UI out. Only the notice may
// fail silently. It is safe to call while a status sync is in flight: the
// session goes first so a sync that saves after the wipe sees it changed.
func (inv *Invalidator) Invalidate(reason string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	metrics.ForceLogouts.Inc()
	inv.cfg.Logger.Info("remote session invalidation", "reason", reason)

	if inv.cfg.Session != nil {
		if err := inv.cfg.Session.Clear(); err != nil {
			inv.cfg.Logger.Error("session clear failed", "err", err)
		}
	}
	if inv.cfg.Secure != nil {
		if err := inv.cfg.Secure.ClearAll(); err != nil {
			inv.cfg.Logger.Error("secure state wipe failed", "err", err)
		}
	}
	inv.cfg.Transport.Stop()

	if inv.cfg.Notifier != nil {
		err := inv.cfg.Notifier.Notify(Notice{
			Kind:  NoticeForceLogout,
			Title: inv.cfg.AppName,
			Body:  forceLogoutBody,
			At:    time.Now(),
		})
		if err != nil {
			inv.cfg.Logger.Warn("force logout notice failed", "err", err)
		}
	}
	if inv.cfg.Sink != nil {
		inv.cfg.Sink.SignedOut(reason)
	}
}

// Result says what Handle did with a payload.
type Result int

const (
	Ignored Result = iota
	Invalidated
	Notified
)

func (r Result) String() string {
	switch r {
	case Invalidated:
		return "invalidated"
	case Notified:
		return "notified"
	default:
		return "ignored"
	}
}

// Handler routes push payloads.
type Handler struct {
	inv      *Invalidator
	notifier Notifier
	appName  string
	logger   *slog.Logger
}

// NewHandler routes FORCE_LOGOUT to inv and other messages to notifier.
func NewHandler(inv *Invalidator, notifier Notifier, appName string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inv: inv, notifier: notifier, appName: appName, logger: logger}
}

// Handle processes one data payload.
func (h *Handler) Handle(data map[string]string) Result {
	if data[ActionKey] == ActionForceLogout {
		h.inv.Invalidate("force logout")
		return Invalidated
	}

	link := firstNonEmpty(data["link"], data["url"])
	body := firstNonEmpty(data["body"], data["message"])
	if body == "" && link == "" {
		return Ignored
	}
	if h.notifier == nil {
		return Ignored
	}
	n := Notice{
		Kind:  NoticeMessage,
		Title: firstNonEmpty(data["title"], h.appName),
		Body:  body,
		Link:  link,
		At:    time.Now(),
	}
	if err := h.notifier.Notify(n); err != nil {
		h.logger.Warn("push notice failed", "err", err)
		return Ignored
	}
	return Notified
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
