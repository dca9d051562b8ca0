// Package protocol defines the event envelope exchanged over the realtime
// transport, the typed client commands and the server events.
package protocol

// Client -> server events.
const (
	EventCreateGroup     = "create-group"
	EventJoinGroup       = "join-group"
	EventRejoinGroup     = "rejoin-group"
	EventLeaveGroup      = "leave-group"
	EventDisbandGroup    = "disband-group"
	EventTimeSyncRequest = "time-sync-request"
	EventAddToQueue      = "add-to-queue"
	EventPlayNow         = "play-now"
	EventRemoveFromQueue = "remove-from-queue"
	EventReorderQueue    = "reorder-queue"
	EventSkipSong        = "skip-song"
	EventSongEnded       = "song-ended"
	EventPlaybackToggle  = "playback-toggle"
	EventSeek            = "seek"
	EventRequestSync     = "request-sync"
	EventChatMessage     = "chat-message"
)

// Server -> client events.
const (
	EventTimeSyncResponse = "time-sync-response"
	EventGroupCreated     = "group-created"
	EventGroupJoined      = "group-joined"
	EventGroupRejoined    = "group-rejoined"
	EventGroupNotFound    = "group-not-found"
	EventGroupError       = "group-error"
	EventMemberJoined     = "member-joined"
	EventMemberLeft       = "member-left"
	EventGroupDisbanded   = "group-disbanded"
	EventQueueUpdated     = "queue-updated"
	EventQueueError       = "queue-error"
	EventQueueEnded       = "queue-ended"
	EventPlaybackUpdate   = "playback-update"
	EventPlaybackError    = "playback-error"
	EventMusicUpdate      = "music-update"
	EventSyncState        = "sync-state"
	EventNewMessage       = "new-message"
	EventError            = "error"
)

// Queue actions reported in queue-updated.
const (
	QueueActionAdd     = "add"
	QueueActionPlayNow = "play-now"
	QueueActionRemove  = "remove"
	QueueActionReorder = "reorder"
	QueueActionSkip    = "skip"
	QueueActionAdvance = "advance"
)
