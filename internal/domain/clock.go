package domain

import (
	"sync"
	"time"
)

// Clock supplies the current time. All persisted timestamps are UTC with
// second precision so that stored values compare consistently.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return Normalize(time.Now()) }

// Normalize converts t to the persisted form (UTC, whole seconds).
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// ManualClock is a Clock that only moves when told to. Used by tests and
// by tooling that replays a schedule.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: Normalize(t)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = Normalize(t)
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = Normalize(c.now.Add(d))
	c.mu.Unlock()
}
