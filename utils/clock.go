package utils

import (
	"sync"
	"time"
)

// Clock is the injected time source shared by the lifecycle engine, the
// escalation scheduler, and the auto-close sweeper. Tests substitute a
// ManualClock to drive deterministic escalation scenarios.
type Clock interface {
	Now() time.Time
}

// RealClock returns UTC wall time truncated to the minute, the system-wide
// timestamp precision.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Minute)
}

// ManualClock is a settable clock for tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts a manual clock at the given instant.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start.UTC()}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to an absolute instant.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
