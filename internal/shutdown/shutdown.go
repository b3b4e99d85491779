// Package shutdown runs graceful-shutdown handlers in priority order, each
// under its own timeout, bounded by an outer deadline and a hard
// force-exit fallback.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/arcbridge/toolgate/internal/logger"
)

// Handler is one unit of graceful-shutdown work, run in Priority order
// (lowest first).
type Handler struct {
	Name     string
	Priority int
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

type Coordinator struct {
	handlers      []Handler
	log           *logger.StyledLogger
	outerDeadline time.Duration
	forceExit     time.Duration
	draining      atomic.Bool
}

func NewCoordinator(log *logger.StyledLogger) *Coordinator {
	return &Coordinator{log: log, outerDeadline: 30 * time.Second, forceExit: 45 * time.Second}
}

func (c *Coordinator) Register(h Handler) {
	c.handlers = append(c.handlers, h)
}

// Draining reports whether shutdown has started; the HTTP layer consults
// this to reject new invocations with a retryable service_unavailable
// error once it returns true.
func (c *Coordinator) Draining() bool { return c.draining.Load() }

// Shutdown runs every registered handler in priority order, sequentially,
// each bounded by its own timeout, the whole sequence bounded by the outer
// deadline. A background timer force-exits the process if the sequence is
// still running once the hard force-exit deadline has passed.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.draining.Store(true)

	forceTimer := time.AfterFunc(c.forceExit, func() {
		if c.log != nil {
			c.log.Error("graceful shutdown exceeded hard deadline, forcing exit", "deadline", c.forceExit)
		}
		os.Exit(1)
	})
	defer forceTimer.Stop()

	outerCtx, cancel := context.WithTimeout(ctx, c.outerDeadline)
	defer cancel()

	sorted := append([]Handler(nil), c.handlers...)
	sortByPriority(sorted)

	var firstErr error
	for _, h := range sorted {
		timeout := h.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hctx, hcancel := context.WithTimeout(outerCtx, timeout)
		err := h.Run(hctx)
		hcancel()

		if err != nil {
			if c.log != nil {
				c.log.Error("shutdown handler failed", "handler", h.Name, "error", err)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("handler %q: %w", h.Name, err)
			}
			continue
		}
		if c.log != nil {
			c.log.Debug("shutdown handler completed", "handler", h.Name)
		}
	}
	return firstErr
}

func sortByPriority(handlers []Handler) {
	for i := 1; i < len(handlers); i++ {
		for j := i; j > 0 && handlers[j].Priority < handlers[j-1].Priority; j-- {
			handlers[j], handlers[j-1] = handlers[j-1], handlers[j]
		}
	}
}
