package statussync

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RefresherConfig wires a Refresher. A zero interval disables that loop.
type RefresherConfig struct {
	Refresh           func(ctx context.Context)
	KeepAlive         func(ctx context.Context) error
	Interval          time.Duration
	KeepAliveInterval time.Duration
	// ManualInterval is the minimum spacing between honoured Trigger calls.
	ManualInterval time.Duration
	Logger         *slog.Logger
}

// Refresher runs periodic status refreshes and keep-alives, plus
// rate-limited manual refreshes.
type Refresher struct {
	cfg     RefresherConfig
	limiter *rate.Limiter
	trigger chan struct{}
}

// NewRefresher builds a Refresher. Run starts it.
func NewRefresher(cfg RefresherConfig) *Refresher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.ManualInterval > 0 {
		limit = rate.Every(cfg.ManualInterval)
	}
	return &Refresher{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests an immediate refresh. It reports false when the request
// was throttled.
func (r *Refresher) Trigger() bool {
	if !r.limiter.Allow() {
		return false
	}
	select {
	case r.trigger <- struct{}{}:
	default:
	}
	return true
}

// Run refreshes once at start, then on every tick, until ctx ends.
func (r *Refresher) Run(ctx context.Context) error {
	refreshC, stopRefresh := ticker(r.cfg.Interval)
	defer stopRefresh()
	keepAliveC, stopKeepAlive := ticker(r.cfg.KeepAliveInterval)
	defer stopKeepAlive()

	if r.cfg.Refresh != nil {
		r.cfg.Refresh(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refreshC:
			r.refresh(ctx)
		case <-r.trigger:
			r.refresh(ctx)
		case <-keepAliveC:
			if r.cfg.KeepAlive == nil {
				continue
			}
			if err := r.cfg.KeepAlive(ctx); err != nil {
				r.cfg.Logger.Warn("keep-alive failed", "err", err)
			}
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	if r.cfg.Refresh != nil {
		r.cfg.Refresh(ctx)
	}
}

// ticker returns a nil channel for a non-positive interval; receiving from
// it blocks forever.
func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
