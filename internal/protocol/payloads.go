package protocol

import (
	"sync-service/internal/clock"
	"sync-service/internal/models"
	"sync-service/internal/playback"
)

type NotFoundPayload struct {
	GroupID string `json:"groupId"`
	Error   string `json:"error"`
}

type ErrorPayload struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
}

type MemberJoinedPayload struct {
	GroupID string          `json:"groupId"`
	Member  models.Member   `json:"member"`
	Members []models.Member `json:"members"`
}

type MemberLeftPayload struct {
	GroupID string          `json:"groupId"`
	UserID  string          `json:"userId"`
	Members []models.Member `json:"members"`
}

type DisbandedPayload struct {
	GroupID string `json:"groupId"`
}

type QueueUpdatedPayload struct {
	GroupID           string             `json:"groupId"`
	Queue             []models.QueueItem `json:"queue"`
	CurrentQueueIndex int                `json:"currentQueueIndex"`
	Action            string             `json:"action"`
	Item              *models.QueueItem  `json:"item,omitempty"`
}

type QueueEndedPayload struct {
	GroupID           string               `json:"groupId"`
	PlaybackState     models.PlaybackState `json:"playbackState"`
	CurrentQueueIndex int                  `json:"currentQueueIndex"`
}

func TimeSyncResponse(r clock.SyncReply) Event {
	return Event{Event: EventTimeSyncResponse, Data: r}
}

func GroupCreated(g models.Group) Event { return Event{Event: EventGroupCreated, Data: g} }
func GroupJoined(g models.Group) Event { return Event{Event: EventGroupJoined, Data: g} }
func GroupRejoined(g models.Group) Event { return Event{Event: EventGroupRejoined, Data: g} }

func GroupNotFound(groupID string) Event {
	return Event{Event: EventGroupNotFound, Data: NotFoundPayload{GroupID: groupID, Error: "group not found"}}
}

func GroupError(action string, err error) Event {
	return Event{Event: EventGroupError, Data: ErrorPayload{Error: err.Error(), Action: action}}
}

func MemberJoined(groupID string, m models.Member, members []models.Member) Event {
	return Event{Event: EventMemberJoined, Data: MemberJoinedPayload{GroupID: groupID, Member: m, Members: members}}
}

func MemberLeft(groupID, userID string, members []models.Member) Event {
	return Event{Event: EventMemberLeft, Data: MemberLeftPayload{GroupID: groupID, UserID: userID, Members: members}}
}

func GroupDisbanded(groupID string) Event {
	return Event{Event: EventGroupDisbanded, Data: DisbandedPayload{GroupID: groupID}}
}

// QueueUpdated reports the full queue after a mutation. item is the queue
// item the action was about, if any.
func QueueUpdated(groupID string, s models.SyncState, action string, item *models.QueueItem) Event {
	return Event{Event: EventQueueUpdated, Data: QueueUpdatedPayload{
		GroupID:           groupID,
		Queue:             s.Queue,
		CurrentQueueIndex: s.CurrentQueueIndex,
		Action:            action,
		Item:              item,
	}}
}

func QueueError(action string, err error) Event {
	return Event{Event: EventQueueError, Data: ErrorPayload{Error: err.Error(), Action: action}}
}

func QueueEnded(groupID string, st models.PlaybackState) Event {
	return Event{Event: EventQueueEnded, Data: QueueEndedPayload{GroupID: groupID, PlaybackState: st, CurrentQueueIndex: -1}}
}

func PlaybackUpdate(u playback.Update) Event {
	return Event{Event: EventPlaybackUpdate, Data: u}
}

func PlaybackError(action string, err error) Event {
	return Event{Event: EventPlaybackError, Data: ErrorPayload{Error: err.Error(), Action: action}}
}

func MusicUpdate(t playback.TrackChange) Event {
	return Event{Event: EventMusicUpdate, Data: t}
}

func SyncState(s models.SyncState) Event {
	return Event{Event: EventSyncState, Data: s}
}

func NewMessage(m models.ChatMessage) Event {
	return Event{Event: EventNewMessage, Data: m}
}

// Error reports a frame the server could not interpret.
func Error(err error) Event {
	return Event{Event: EventError, Data: ErrorPayload{Error: err.Error()}}
}
