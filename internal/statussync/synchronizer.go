// Package statussync refreshes the account status with single-fire delivery,
// an overall deadline, failure classification and cache fallback.
package statussync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/harrylevesque/firenet/internal/metrics"
	"github.com/harrylevesque/firenet/internal/models"
)

// DefaultDeadline bounds a whole sync attempt.
const DefaultDeadline = 60 * time.Second

var (
	// ErrForbidden marks an outcome for a suspended account.
	ErrForbidden = errors.New("account suspended")
	// ErrSessionInvalid marks an outcome for a revoked or expired session.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrDeadlineExceeded is the cause used when no result arrived in time.
	ErrDeadlineExceeded = errors.New("status sync deadline exceeded")
	// ErrSessionChanged marks a result for a token that is no longer stored,
	// e.g. after a logout or force logout during the call.
	ErrSessionChanged = errors.New("session changed during status sync")
)

// Kind is the terminal state of a sync attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindForbidden
	KindSessionInvalid
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindForbidden:
		return "forbidden"
	case KindSessionInvalid:
		return "session_invalid"
	default:
		return "failure"
	}
}

// Outcome is delivered exactly once per attempt. For a success served from
// the cache, Cached is set and Err holds the failure that caused the fallback.
type Outcome struct {
	Kind   Kind
	Status *models.AccountStatus
	Cached bool
	Err    error
}

// StatusFetcher performs the network status call.
type StatusFetcher interface {
	Status(ctx context.Context, token string) (*models.AccountStatus, error)
}

// SessionClearer erases the stored session credential.
type SessionClearer interface {
	Clear() error
}

// TokenSource reports the currently stored session token.
type TokenSource interface {
	Token() string
}

// StateWiper erases the local encrypted state.
type StateWiper interface {
	ClearAll() error
}

// Submitter runs work in the background.
type Submitter interface {
	Submit(ctx context.Context, fn func()) error
}

// Deliverer runs outcome callbacks, typically on a UI-affine goroutine.
type Deliverer interface {
	Go(fn func())
}

// Config wires a Synchronizer.
type Config struct {
	Fetcher  StatusFetcher
	Cache    *Cache
	Session  SessionClearer
	Secure   StateWiper
	Pool     Submitter
	Deliver  Deliverer
	Deadline time.Duration
	Logger   *slog.Logger
	// Tokens, when set, drops results for a session that was replaced or
	// cleared while the call was in flight.
	Tokens TokenSource
}

// Synchronizer runs status sync attempts.
type Synchronizer struct {
	fetcher  StatusFetcher
	cache    *Cache
	session  SessionClearer
	secure   StateWiper
	tokens   TokenSource
	pool     Submitter
	deliver  Deliverer
	deadline time.Duration
	logger   *slog.Logger
}

type goSubmitter struct{}

func (goSubmitter) Submit(_ context.Context, fn func()) error {
	go fn()
	return nil
}

type inline struct{}

func (inline) Go(fn func()) { fn() }

// New builds a Synchronizer. Pool defaults to one goroutine per call and
// Deliver to inline delivery.
func New(cfg Config) *Synchronizer {
	s := &Synchronizer{
		fetcher:  cfg.Fetcher,
		cache:    cfg.Cache,
		session:  cfg.Session,
		secure:   cfg.Secure,
		tokens:   cfg.Tokens,
		pool:     cfg.Pool,
		deliver:  cfg.Deliver,
		deadline: cfg.Deadline,
		logger:   cfg.Logger,
	}
	if s.pool == nil {
		s.pool = goSubmitter{}
	}
	if s.deliver == nil {
		s.deliver = inline{}
	}
	if s.deadline <= 0 {
		s.deadline = DefaultDeadline
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// guard lets exactly one of the result path and the deadline path finish an attempt.
type guard struct {
	done atomic.Bool
}

func (g *guard) claim() bool {
	return g.done.CompareAndSwap(false, true)
}

// Start begins an attempt and returns without waiting for a pool slot. cb
// is invoked exactly once through the Deliverer. A result arriving after
// the deadline is dropped without side effects.
func (s *Synchronizer) Start(token string, cb func(Outcome)) {
	g := &guard{}
	timer := time.AfterFunc(s.deadline, func() {
		s.finish(g, nil, token, nil, ErrDeadlineExceeded, cb)
	})

	ctx, cancel := context.WithTimeout(context.Background(), s.deadline)
	go func() {
		err := s.pool.Submit(ctx, func() {
			defer cancel()
			// The guard never aborts the call; the dispatcher's attempt timeouts bound it.
			status, err := s.fetcher.Status(context.Background(), token)
			s.finish(g, timer, token, status, err, cb)
		})
		if err != nil {
			cancel()
			s.finish(g, timer, token, nil, fmt.Errorf("submit status call: %w", err), cb)
		}
	}()
}

// Sync runs an attempt and waits for its outcome. If ctx ends first a
// Failure wrapping ctx.Err() is returned; the attempt still completes.
func (s *Synchronizer) Sync(ctx context.Context, token string) Outcome {
	ch := make(chan Outcome, 1)
	s.Start(token, func(o Outcome) { ch <- o })
	select {
	case o := <-ch:
		return o
	case <-ctx.Done():
		return Outcome{Kind: KindFailure, Err: fmt.Errorf("status sync: %w", ctx.Err())}
	}
}

func (s *Synchronizer) finish(g *guard, timer *time.Timer, token string, status *models.AccountStatus, err error, cb func(Outcome)) {
	if !g.claim() {
		metrics.SyncSuppressed.Inc()
		s.logger.Debug("late status result suppressed", "err", err)
		return
	}
	if timer != nil {
		timer.Stop()
	}
	o := s.resolve(token, status, err)
	metrics.SyncOutcomes.WithLabelValues(o.Kind.String()).Inc()
	s.logger.Info("status sync finished", "outcome", o.Kind.String(), "cached", o.Cached, "err", o.Err)
	s.deliver.Go(func() { cb(o) })
}

// stale reports whether token is no longer the stored session.
func (s *Synchronizer) stale(token string) bool {
	return s.tokens != nil && s.tokens.Token() != token
}

// resolve applies the side effects for a result and builds the outcome.
func (s *Synchronizer) resolve(token string, status *models.AccountStatus, err error) Outcome {
	if s.stale(token) {
		return Outcome{Kind: KindFailure, Err: ErrSessionChanged}
	}
	if err == nil && status == nil {
		err = errors.New("empty status")
	}
	if err == nil {
		if serr := s.cache.Save(status); serr != nil {
			s.logger.Warn("status cache write failed", "err", serr)
		}
		// A wipe that ran before the save landed would be undone by it.
		if s.stale(token) {
			if rerr := s.cache.Remove(); rerr != nil {
				s.logger.Warn("status cache remove failed", "err", rerr)
			}
			return Outcome{Kind: KindFailure, Err: ErrSessionChanged}
		}
		return Outcome{Kind: KindSuccess, Status: status}
	}

	switch Classify(err) {
	case ClassForbidden:
		// Never read the cache here: stale access must not mask a suspension.
		if rerr := s.cache.Remove(); rerr != nil {
			s.logger.Warn("status cache remove failed", "err", rerr)
		}
		return Outcome{Kind: KindForbidden, Err: fmt.Errorf("%w: %w", ErrForbidden, err)}

	case ClassSessionInvalid:
		if cerr := s.session.Clear(); cerr != nil {
			s.logger.Error("session clear failed", "err", cerr)
		}
		if s.secure != nil {
			if werr := s.secure.ClearAll(); werr != nil {
				s.logger.Error("secure state wipe failed", "err", werr)
			}
		}
		return Outcome{Kind: KindSessionInvalid, Err: fmt.Errorf("%w: %w", ErrSessionInvalid, err)}

	default:
		if cached, ok := s.cache.Load(); ok {
			metrics.CacheFallbacks.Inc()
			return Outcome{Kind: KindSuccess, Status: cached, Cached: true, Err: err}
		}
		return Outcome{Kind: KindFailure, Err: err}
	}
}
