package client

import (
	"math"

	"sync-service/internal/models"
)

// DefaultDriftThreshold is how far, in seconds, local playback may stray
// from the authoritative position before it is snapped back.
const DefaultDriftThreshold = 0.5

// Correction projects the authoritative position to sharedNow and reports
// whether actual is far enough off to be hard-set to it.
func Correction(st models.PlaybackState, sharedNow int64, actual, threshold float64) (expected float64, snap bool) {
	expected = st.PositionAt(sharedNow)
	return expected, math.Abs(expected-actual) > threshold
}
