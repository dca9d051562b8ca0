package client

import "encoding/json"

// Player is the local audio output driven by the client. Calls arrive from
// the connection's read loop and from scheduler timers, so implementations
// must be safe for concurrent use.
type Player interface {
	// Load prepares song and returns once it can start without delay.
	Load(song json.RawMessage) error
	Play()
	Pause()
	Seek(seconds float64)
	// Stop unloads the current track.
	Stop()
	Position() float64
	Playing() bool
}
