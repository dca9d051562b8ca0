package engine

import (
	"errors"

	"sync-service/internal/playback"
	"sync-service/internal/protocol"
	"sync-service/internal/queue"
	"sync-service/internal/registry"
)

// ErrIdentityMismatch rejects a create/join that names a different user than
// the one the connection is already bound to.
var ErrIdentityMismatch = errors.New("connection is bound to another user")

// rejection maps a command failure to the event sent back to its originator.
func rejection(cmd protocol.Command, err error) protocol.Event {
	name := cmd.EventName()
	var qerr *queue.Error
	switch {
	case errors.Is(err, registry.ErrGroupNotFound):
		return protocol.GroupNotFound(groupOf(cmd))
	case errors.As(err, &qerr):
		return protocol.QueueError(name, err)
	case errors.Is(err, playback.ErrNoTrack),
		errors.Is(err, playback.ErrStaleTrack),
		errors.Is(err, playback.ErrInvalidPosition):
		return protocol.PlaybackError(name, err)
	}

	switch cmd.(type) {
	case *protocol.AddToQueue, *protocol.PlayNow, *protocol.RemoveFromQueue,
		*protocol.ReorderQueue, *protocol.SkipSong, *protocol.SongEnded:
		return protocol.QueueError(name, err)
	case *protocol.PlaybackToggle, *protocol.Seek:
		return protocol.PlaybackError(name, err)
	case *protocol.CreateGroup, *protocol.JoinGroup, *protocol.RejoinGroup,
		*protocol.LeaveGroup, *protocol.DisbandGroup:
		return protocol.GroupError(name, err)
	default:
		return protocol.Error(err)
	}
}
