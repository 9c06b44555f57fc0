// Package clock abstracts time so run durations are deterministic in tests.
package clock

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// FakeClock is a manually driven Clock. When Step is non-zero, every call to
// Now moves the clock forward by Step after reading it.
type FakeClock struct {
	current time.Time
	Step    time.Duration
}

// NewFakeClock creates a FakeClock frozen at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

func (c *FakeClock) Now() time.Time {
	now := c.current
	c.current = c.current.Add(c.Step)
	return now
}

// Since measures against the current fake time without advancing it.
func (c *FakeClock) Since(t time.Time) time.Duration {
	return c.current.Sub(t)
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.current = t
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
