// Package periodic schedules the recurring service check that
// re-evaluates supervised services between reloads.
package periodic

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/finixos/finix/pkg/logging"
)

// Checker runs a callback on a fixed interval. The interval comes
// from the service-interval configuration directive and may change
// across reloads; Reinit tears the schedule down and rebuilds it.
// Implements config.PeriodicCheck.
type Checker struct {
	log *logging.Logger
	fn  func()

	mu       sync.Mutex
	cron     *cron.Cron
	interval time.Duration
}

// NewChecker creates a stopped checker calling fn on each tick.
func NewChecker(log *logging.Logger, fn func()) *Checker {
	return &Checker{log: log, fn: fn}
}

// Reinit replaces the current schedule. A zero or negative interval
// stops the periodic check entirely.
func (c *Checker) Reinit(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron != nil {
		c.cron.Stop()
		c.cron = nil
	}
	c.interval = interval

	if interval <= 0 {
		c.log.Debug("Periodic service check disabled")
		return
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc("@every "+interval.String(), c.fn); err != nil {
		c.log.Error("Failed scheduling service check: %v", err)
		c.cron = nil
		return
	}
	c.cron.Start()
	c.log.Debug("Periodic service check every %s", interval)
}

// Interval returns the currently configured interval.
func (c *Checker) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Stop halts the schedule, used during shutdown.
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		c.cron.Stop()
		c.cron = nil
	}
	c.interval = 0
}
