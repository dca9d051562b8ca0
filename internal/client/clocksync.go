package client

import (
	"sync"

	"sync-service/internal/clock"
)

// ClockSync tracks the estimated offset between the local clock and the
// server clock. The latest sample always wins.
type ClockSync struct {
	local clock.Clock

	mu      sync.RWMutex
	sample  clock.Sample
	samples int
}

func NewClockSync(local clock.Clock) *ClockSync {
	if local == nil {
		local = clock.System{}
	}
	return &ClockSync{local: local}
}

// LocalNow reads the local clock in unix millis.
func (s *ClockSync) LocalNow() int64 { return clock.NowMillis(s.local) }

// Observe records a time-sync exchange: t0 sent, t1 server reading, t2
// received (local).
func (s *ClockSync) Observe(t0, t1, t2 int64) clock.Sample {
	sample := clock.Estimate(t0, t1, t2)
	s.mu.Lock()
	s.sample = sample
	s.samples++
	s.mu.Unlock()
	return sample
}

// Offset returns the current server-minus-local estimate in millis.
func (s *ClockSync) Offset() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sample.Offset
}

// Synced reports whether at least one exchange completed.
func (s *ClockSync) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples > 0
}

// SharedNow is the local reading translated onto the server clock.
func (s *ClockSync) SharedNow() int64 {
	return clock.SharedNow(s.LocalNow(), s.Offset())
}

// DelayUntil is how long to wait locally until the server-clock instant
// scheduledTime; never negative.
func (s *ClockSync) DelayUntil(scheduledTime int64) int64 {
	return clock.Delay(scheduledTime, s.SharedNow())
}
