package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sync-service/internal/clock"
)

func TestClockSync_ObserveAndTranslate(t *testing.T) {
	local := clock.NewManual(time.UnixMilli(10_000))
	s := NewClockSync(local)
	assert.False(t, s.Synced())
	assert.Equal(t, int64(10_000), s.SharedNow())

	// sent at 1000, server read 1600, received at 1100: rtt 100, offset 550
	sample := s.Observe(1000, 1600, 1100)
	assert.Equal(t, int64(550), sample.Offset)
	assert.Equal(t, int64(100), sample.RTT)
	assert.True(t, s.Synced())
	assert.Equal(t, int64(10_550), s.SharedNow())

	assert.Equal(t, int64(250), s.DelayUntil(10_800))
	assert.Equal(t, int64(0), s.DelayUntil(10_000))

	s.Observe(2000, 1900, 2100)
	assert.Equal(t, int64(-150), s.Offset(), "latest sample wins")
}
