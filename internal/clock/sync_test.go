package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateSymmetricDelay(t *testing.T) {
	// client is 1000ms behind the server, 50ms each way
	t0 := int64(10_000)
	t1 := int64(11_050)
	t2 := int64(10_100)

	s := Estimate(t0, t1, t2)
	assert.Equal(t, int64(100), s.RTT)
	assert.Equal(t, int64(1000), s.Offset)
	assert.Equal(t, t1+50, SharedNow(t2, s.Offset))
}

func TestEstimateNegativeRTTClamped(t *testing.T) {
	s := Estimate(500, 1000, 400)
	assert.Equal(t, int64(0), s.RTT)
	assert.Equal(t, int64(600), s.Offset)
}

func TestDelayNeverNegative(t *testing.T) {
	assert.Equal(t, int64(250), Delay(1250, 1000))
	assert.Equal(t, int64(0), Delay(900, 1000))
}

func TestRespondEchoesClientTime(t *testing.T) {
	c := NewManual(time.UnixMilli(42_000))
	reply := Respond(c, 7)
	require.Equal(t, int64(7), reply.ClientTime)
	require.Equal(t, int64(42_000), reply.ServerTime)

	c.Advance(1500 * time.Millisecond)
	require.Equal(t, int64(43_500), NowMillis(c))
}
