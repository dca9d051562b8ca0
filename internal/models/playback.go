package models

import "encoding/json"

// PlaybackState is the authoritative playback position of a group.
// CurrentTime is accurate as of LastUpdate (server millis); readers project
// it forward while IsPlaying.
type PlaybackState struct {
	IsPlaying    bool            `json:"isPlaying"`
	CurrentTrack json.RawMessage `json:"currentTrack"`
	CurrentTime  float64         `json:"currentTime"`
	LastUpdate   int64           `json:"lastUpdate"`
}

// PositionAt projects CurrentTime to nowMillis on the shared clock.
func (p PlaybackState) PositionAt(nowMillis int64) float64 {
	if !p.IsPlaying {
		return p.CurrentTime
	}
	elapsed := float64(nowMillis-p.LastUpdate) / 1000.0
	if elapsed < 0 {
		elapsed = 0
	}
	return p.CurrentTime + elapsed
}

// SyncState is the pull-based recovery snapshot.
type SyncState struct {
	PlaybackState     PlaybackState `json:"playbackState"`
	Queue             []QueueItem   `json:"queue"`
	CurrentQueueIndex int           `json:"currentQueueIndex"`
}
