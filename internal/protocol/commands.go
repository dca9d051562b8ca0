package protocol

import (
	"encoding/json"
	"errors"

	"sync-service/internal/models"
)

var (
	errMissingGroup = errors.New("groupId is required")
	errMissingUser  = errors.New("userId is required")
)

// Command is a decoded client event.
type Command interface {
	EventName() string
	validate() error
}

// GroupCommand is a command addressed to an existing group.
type GroupCommand interface {
	Command
	Group() string
}

// Identity is the already-authenticated user attached to membership events.
type Identity struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	ProfilePic string `json:"profilePic"`
}

// Member converts the identity to a group member.
func (i Identity) Member() models.Member {
	return models.Member{UserID: i.UserID, UserName: i.UserName, ProfilePic: i.ProfilePic}
}

func (i Identity) validate() error {
	if i.UserID == "" {
		return errMissingUser
	}
	return nil
}

type CreateGroup struct {
	Name string `json:"name"`
	Identity
}

func (*CreateGroup) EventName() string { return EventCreateGroup }

func (c *CreateGroup) validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return c.Identity.validate()
}

type JoinGroup struct {
	GroupID string `json:"groupId"`
	Identity
}

func (*JoinGroup) EventName() string { return EventJoinGroup }
func (c *JoinGroup) Group() string { return c.GroupID }

func (c *JoinGroup) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	return c.Identity.validate()
}

// RejoinGroup is sent by a reconnecting client holding a saved group id.
type RejoinGroup struct {
	GroupID string `json:"groupId"`
	Identity
}

func (*RejoinGroup) EventName() string { return EventRejoinGroup }
func (c *RejoinGroup) Group() string { return c.GroupID }

func (c *RejoinGroup) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	return c.Identity.validate()
}

type LeaveGroup struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

func (*LeaveGroup) EventName() string { return EventLeaveGroup }
func (c *LeaveGroup) Group() string { return c.GroupID }

func (c *LeaveGroup) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	if c.UserID == "" {
		return errMissingUser
	}
	return nil
}

type DisbandGroup struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

func (*DisbandGroup) EventName() string { return EventDisbandGroup }
func (c *DisbandGroup) Group() string { return c.GroupID }

func (c *DisbandGroup) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	if c.UserID == "" {
		return errMissingUser
	}
	return nil
}

type TimeSyncRequest struct {
	ClientTime int64 `json:"clientTime"`
}

func (*TimeSyncRequest) EventName() string { return EventTimeSyncRequest }
func (*TimeSyncRequest) validate() error { return nil }

type AddToQueue struct {
	GroupID string          `json:"groupId"`
	Song    json.RawMessage `json:"song"`
	AddedBy Identity        `json:"addedBy"`
}

func (*AddToQueue) EventName() string { return EventAddToQueue }
func (c *AddToQueue) Group() string { return c.GroupID }

func (c *AddToQueue) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	return nil
}

type PlayNow struct {
	GroupID string          `json:"groupId"`
	Song    json.RawMessage `json:"song"`
	AddedBy Identity        `json:"addedBy"`
}

func (*PlayNow) EventName() string { return EventPlayNow }
func (c *PlayNow) Group() string { return c.GroupID }

func (c *PlayNow) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	return nil
}

type RemoveFromQueue struct {
	GroupID     string `json:"groupId"`
	QueueItemID string `json:"queueItemId"`
	UserID      string `json:"userId"`
}

func (*RemoveFromQueue) EventName() string { return EventRemoveFromQueue }
func (c *RemoveFromQueue) Group() string { return c.GroupID }

func (c *RemoveFromQueue) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	return nil
}

type ReorderQueue struct {
	GroupID   string `json:"groupId"`
	FromIndex int    `json:"fromIndex"`
	ToIndex   int    `json:"toIndex"`
}

func (*ReorderQueue) EventName() string { return EventReorderQueue }
func (c *ReorderQueue) Group() string { return c.GroupID }

func (c *ReorderQueue) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	return nil
}

type SkipSong struct {
	GroupID string `json:"groupId"`
}

func (*SkipSong) EventName() string { return EventSkipSong }
func (c *SkipSong) Group() string { return c.GroupID }

func (c *SkipSong) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	return nil
}

// SongEnded reports that the queue item SongID finished playing locally.
type SongEnded struct {
	GroupID string `json:"groupId"`
	SongID  string `json:"songId"`
}

func (*SongEnded) EventName() string { return EventSongEnded }
func (c *SongEnded) Group() string { return c.GroupID }

func (c *SongEnded) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	if c.SongID == "" {
		return errors.New("songId is required")
	}
	return nil
}

type PlaybackToggle struct {
	GroupID     string  `json:"groupId"`
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	QueueItemID string  `json:"queueItemId,omitempty"`
}

func (*PlaybackToggle) EventName() string { return EventPlaybackToggle }
func (c *PlaybackToggle) Group() string { return c.GroupID }

func (c *PlaybackToggle) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	return nil
}

type Seek struct {
	GroupID     string  `json:"groupId"`
	CurrentTime float64 `json:"currentTime"`
	QueueItemID string  `json:"queueItemId,omitempty"`
}

func (*Seek) EventName() string { return EventSeek }
func (c *Seek) Group() string { return c.GroupID }

func (c *Seek) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	return nil
}

type RequestSync struct {
	GroupID string `json:"groupId"`
}

func (*RequestSync) EventName() string { return EventRequestSync }
func (c *RequestSync) Group() string { return c.GroupID }

func (c *RequestSync) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	return nil
}

// ChatMessage keeps every field the client sent; only groupId, senderId and
// message are interpreted.
type ChatMessage struct {
	GroupID  string
	SenderID string
	Message  string
	Extra    map[string]json.RawMessage
}

func (*ChatMessage) EventName() string { return EventChatMessage }
func (c *ChatMessage) Group() string { return c.GroupID }

// UnmarshalJSON splits known fields from pass-through ones.
func (c *ChatMessage) UnmarshalJSON(b []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for key, dst := range map[string]*string{"groupId": &c.GroupID, "senderId": &c.SenderID, "message": &c.Message} {
		raw, ok := all[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return err
		}
		delete(all, key)
	}
	delete(all, "timestamp")
	c.Extra = all
	return nil
}

// MarshalJSON writes the pass-through fields back next to the known ones.
func (c ChatMessage) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["groupId"] = c.GroupID
	out["senderId"] = c.SenderID
	out["message"] = c.Message
	return json.Marshal(out)
}

func (c *ChatMessage) validate() error {
	if c.GroupID == "" {
		return errMissingGroup
	}
	if c.Message == "" {
		return errors.New("message is required")
	}
	return nil
}
