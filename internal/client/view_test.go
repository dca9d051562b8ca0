package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sync-service/internal/models"
	"sync-service/internal/playback"
	"sync-service/internal/protocol"
)

func seededView() *View {
	v := NewView()
	v.Reset(models.Group{
		ID:      "GRP001",
		Members: []models.Member{{UserID: "u1"}},
		Queue: []models.QueueItem{
			{ID: "a", Song: json.RawMessage(`"a"`)},
			{ID: "b", Song: json.RawMessage(`"b"`)},
		},
		CurrentQueueIndex: 0,
	})
	return v
}

func queueIDs(items []models.QueueItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

func TestView_OptimisticEditsStayLocal(t *testing.T) {
	v := seededView()

	pending := v.PendingAdd(json.RawMessage(`"c"`), models.Member{UserID: "u1"}, 5)
	v.PendingRemove("a")

	assert.Equal(t, "pending-1", pending.ID)
	assert.Equal(t, []string{"b", "pending-1"}, queueIDs(v.Optimistic().Queue))

	auth, ok := v.Authoritative()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, queueIDs(auth.Queue))
}

func TestView_AuthoritativeQueueWins(t *testing.T) {
	v := seededView()
	v.PendingAdd(json.RawMessage(`"c"`), models.Member{UserID: "u1"}, 5)
	v.PendingRemove("b")

	v.ApplyQueue(protocol.QueueUpdatedPayload{
		GroupID:           "GRP001",
		Queue:             []models.QueueItem{{ID: "a"}, {ID: "b"}, {ID: "x"}},
		CurrentQueueIndex: 0,
		Action:            protocol.QueueActionAdd,
	})

	assert.Equal(t, []string{"a", "b", "x"}, queueIDs(v.Optimistic().Queue))
}

func TestView_PendingPlaybackUntilBroadcast(t *testing.T) {
	v := seededView()
	v.PendingPlayback(true, 12.5, 1_000)

	assert.True(t, v.Optimistic().PlaybackState.IsPlaying)
	auth, _ := v.Authoritative()
	assert.False(t, auth.PlaybackState.IsPlaying)

	v.ApplyPlayback(playback.Update{IsPlaying: false, CurrentTime: 3, ScheduledTime: 2_300})
	opt := v.Optimistic()
	assert.False(t, opt.PlaybackState.IsPlaying)
	assert.Equal(t, 3.0, opt.PlaybackState.CurrentTime)
	assert.Equal(t, int64(2_300), opt.PlaybackState.LastUpdate)
}

func TestView_TrackChangeMovesSelection(t *testing.T) {
	v := seededView()
	v.ApplyTrack(playback.TrackChange{
		Song:          json.RawMessage(`"b"`),
		QueueItem:     models.QueueItem{ID: "b"},
		AutoPlay:      true,
		ScheduledTime: 9_000,
	})

	item, ok := v.CurrentItem()
	require.True(t, ok)
	assert.Equal(t, "b", item.ID)
	auth, _ := v.Authoritative()
	assert.True(t, auth.PlaybackState.IsPlaying)
	assert.JSONEq(t, `"b"`, string(auth.PlaybackState.CurrentTrack))
}

func TestView_QueueEndedAndClear(t *testing.T) {
	v := seededView()
	v.ApplyQueueEnded(protocol.QueueEndedPayload{GroupID: "GRP001", CurrentQueueIndex: -1})
	_, ok := v.CurrentItem()
	assert.False(t, ok)

	v.Clear()
	assert.Equal(t, "", v.GroupID())
	_, active := v.Authoritative()
	assert.False(t, active)
}

func TestView_SnapshotIsACopy(t *testing.T) {
	v := seededView()
	auth, _ := v.Authoritative()
	auth.Queue[0].ID = "mutated"
	auth.Members[0].UserID = "mutated"

	again, _ := v.Authoritative()
	assert.Equal(t, "a", again.Queue[0].ID)
	assert.Equal(t, "u1", again.Members[0].UserID)
}
