package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownEvent = errors.New("unknown event")
)

// Envelope is the frame carried by every websocket text message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound server event.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Encode marshals an outbound event.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Decode parses a raw frame into one of the typed commands.
func Decode(raw []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformed)
	}

	var cmd Command
	switch env.Event {
	case EventCreateGroup:
		cmd = &CreateGroup{}
	case EventJoinGroup:
		cmd = &JoinGroup{}
	case EventRejoinGroup:
		cmd = &RejoinGroup{}
	case EventLeaveGroup:
		cmd = &LeaveGroup{}
	case EventDisbandGroup:
		cmd = &DisbandGroup{}
	case EventTimeSyncRequest:
		cmd = &TimeSyncRequest{}
	case EventAddToQueue:
		cmd = &AddToQueue{}
	case EventPlayNow:
		cmd = &PlayNow{}
	case EventRemoveFromQueue:
		cmd = &RemoveFromQueue{}
	case EventReorderQueue:
		cmd = &ReorderQueue{}
	case EventSkipSong:
		cmd = &SkipSong{}
	case EventSongEnded:
		cmd = &SongEnded{}
	case EventPlaybackToggle:
		cmd = &PlaybackToggle{}
	case EventSeek:
		cmd = &Seek{}
	case EventRequestSync:
		cmd = &RequestSync{}
	case EventChatMessage:
		cmd = &ChatMessage{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
	}

	data := env.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	if err := cmd.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	return cmd, nil
}
