// Package clock holds the shared-clock arithmetic used for scheduled playback.
//
// The server side is stateless: it answers a time-sync request with its own
// reading. Clients estimate their offset from that reply and translate every
// server-issued absolute timestamp through it.
package clock

import (
	"sync"
	"time"
)

// Clock is the server's time source. All timestamps on the wire are unix millis.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// Now implements Clock.
func (System) Now() time.Time { return time.Now() }

// Manual is a settable clock for tests and simulations.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now implements Clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Millis returns t as unix milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// NowMillis reads c in unix milliseconds.
func NowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}
