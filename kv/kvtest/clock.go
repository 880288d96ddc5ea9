package kvtest

import (
	"sync"
	"time"
)

// Clock is a manually advanced time source for kv.WithClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at the current wall time.
func NewClock() *Clock { return &Clock{now: time.Now()} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
