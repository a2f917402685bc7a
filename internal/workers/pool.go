// Package workers runs background units of work on a bounded pool and
// delivers callbacks in order on a single goroutine.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned when submitting to a closed pool.
var ErrClosed = errors.New("workers: pool closed")

// Pool runs at most n tasks at once.
type Pool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	closed atomic.Bool
	logger *slog.Logger
}

// NewPool returns a pool running up to n tasks concurrently.
func NewPool(n int, logger *slog.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n)), logger: logger}
}

// Submit waits for a free slot, then runs fn in the background. It returns
// an error without running fn if ctx ends first or the pool is closed.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if p.closed.Load() {
		p.sem.Release(1)
		return ErrClosed
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("worker task panicked", "panic", r)
			}
		}()
		fn()
	}()
	return nil
}

// Close stops accepting work and waits for running tasks.
func (p *Pool) Close() {
	p.closed.Store(true)
	p.wg.Wait()
}
