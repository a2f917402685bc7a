package api

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harrylevesque/firenet/internal/models"
	"github.com/harrylevesque/firenet/internal/push"
	"github.com/harrylevesque/firenet/internal/statussync"
)

// State is the coarse UI state.
type State string

const (
	StateSignedOut     State = "signed_out"
	StateAuthenticated State = "authenticated"
	StateSuspended     State = "suspended"
)

// defaultNoticeLimit caps queued notices; the oldest are dropped first.
const defaultNoticeLimit = 32

// OutcomeView is the JSON form of a sync outcome.
type OutcomeView struct {
	Outcome          string                `json:"outcome"`
	Cached           bool                  `json:"cached,omitempty"`
	Error            string                `json:"error,omitempty"`
	Status           *models.AccountStatus `json:"status,omitempty"`
	UpdatePrompt     string                `json:"update_prompt,omitempty"`
	RemainingTraffic *int64                `json:"remaining_traffic,omitempty"`
	ExpiresAt        *time.Time            `json:"expires_at,omitempty"`
}

// NewOutcomeView flattens o for the UI.
func NewOutcomeView(o statussync.Outcome) OutcomeView {
	v := OutcomeView{Outcome: o.Kind.String(), Cached: o.Cached}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	if o.Status != nil {
		v.Status = o.Status
		v.UpdatePrompt = o.Status.UpdatePrompt().String()
		if rem, ok := o.Status.RemainingTraffic(); ok {
			v.RemainingTraffic = &rem
		}
		if t, ok := o.Status.Expiry(); ok {
			v.ExpiresAt = &t
		}
	}
	return v
}

// Snapshot is a point-in-time copy of the board.
type Snapshot struct {
	State    State        `json:"state"`
	Username string       `json:"username,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Last     *OutcomeView `json:"last,omitempty"`
	Pending  int          `json:"pending_notices"`
}

// Board holds what the UI shows: the session state, the last outcome and
// queued notices. It implements auth.Sink, push.Notifier and push.StateSink.
type Board struct {
	mu       sync.Mutex
	state    State
	username string
	reason   string
	last     *OutcomeView
	notices  []push.Notice
	limit    int
	logger   *slog.Logger
}

// NewBoard returns a signed-out board keeping at most limit notices.
func NewBoard(limit int, logger *slog.Logger) *Board {
	if limit <= 0 {
		limit = defaultNoticeLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{state: StateSignedOut, limit: limit, logger: logger}
}

// Restore marks a session found at startup as authenticated.
func (b *Board) Restore(username string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateAuthenticated
	b.username = username
}

func (b *Board) SignedIn(username string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateAuthenticated
	b.username = username
	b.reason = ""
	b.last = nil
}

// StatusChanged records an outcome. Once signed out, only SignedIn or
// Restore leaves that state, so a late outcome is ignored.
func (b *Board) StatusChanged(o statussync.Outcome) {
	v := NewOutcomeView(o)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateSignedOut {
		b.logger.Debug("outcome ignored while signed out", "outcome", v.Outcome)
		return
	}
	b.last = &v
	switch o.Kind {
	case statussync.KindSuccess:
		if b.state == StateSuspended {
			b.reason = ""
		}
		b.state = StateAuthenticated
	case statussync.KindForbidden:
		b.state = StateSuspended
		b.reason = v.Error
	}
}

func (b *Board) SignedOut(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger.Debug("ui signed out", "reason", reason)
	b.state = StateSignedOut
	b.username = ""
	b.reason = reason
	b.last = nil
}

func (b *Board) Notify(n push.Notice) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
	if over := len(b.notices) - b.limit; over > 0 {
		b.notices = append([]push.Notice(nil), b.notices[over:]...)
	}
	return nil
}

// Snapshot returns the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		State:    b.state,
		Username: b.username,
		Reason:   b.reason,
		Pending:  len(b.notices),
	}
	if b.last != nil {
		last := *b.last
		s.Last = &last
	}
	return s
}

// Drain returns and removes all queued notices, oldest first.
func (b *Board) Drain() []push.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	if out == nil {
		out = []push.Notice{}
	}
	return out
}
