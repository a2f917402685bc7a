// Package transport adapts the VPN/proxy transport that runs alongside the
// session core. The core only ever asks it to stop.
package transport

import (
	"context"
	"log/slog"
	"os/exec"
	"sync/atomic"
	"time"
)

// Stopper stops the transport. Stop must not block on the transport itself.
type Stopper interface {
	Stop()
}

// Nop ignores Stop.
type Nop struct{}

func (Nop) Stop() {}

// CommandStopper runs a fixed command to stop the transport, fire-and-forget.
type CommandStopper struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger
	runs    atomic.Int64
}

// NewCommandStopper runs argv on Stop. An empty argv makes Stop a no-op.
func NewCommandStopper(argv []string, logger *slog.Logger) *CommandStopper {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandStopper{argv: argv, timeout: 30 * time.Second, logger: logger}
}

// Stop starts the stop command in the background and returns at once.
func (c *CommandStopper) Stop() {
	if len(c.argv) == 0 {
		return
	}
	c.runs.Add(1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		out, err := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...).CombinedOutput()
		if err != nil {
			c.logger.Warn("transport stop command failed", "cmd", c.argv[0], "err", err, "output", string(out))
			return
		}
		c.logger.Info("transport stopped", "cmd", c.argv[0])
	}()
}

// Runs reports how many times Stop launched the command.
func (c *CommandStopper) Runs() int64 { return c.runs.Load() }
