package clock

import (
	"sync"
	"time"
)

// Clock abstracts the wall clock so stores and the meetup state machine can be
// driven deterministically in tests. Production code injects Real().
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real returns a Clock backed by time.Now.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

// FakeClock is a Clock whose time only moves when Advance or Set is called.
// It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// Fake returns a FakeClock starting at initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}
