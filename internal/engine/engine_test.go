package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sync-service/internal/clock"
	"sync-service/internal/engine"
	"sync-service/internal/mocks"
	"sync-service/internal/models"
	"sync-service/internal/playback"
	"sync-service/internal/protocol"
	"sync-service/internal/queue"
	"sync-service/internal/registry"
)

// roomTransport behaves like the websocket hub: replies go to a connection,
// broadcasts reach every subscribed user.
type roomTransport struct {
	mu      sync.Mutex
	bound   map[string]string
	rooms   map[string]map[string]bool
	replies map[string][]protocol.Event
	inbox   map[string][]protocol.Event
}

func newRoomTransport() *roomTransport {
	return &roomTransport{
		bound:   make(map[string]string),
		rooms:   make(map[string]map[string]bool),
		replies: make(map[string][]protocol.Event),
		inbox:   make(map[string][]protocol.Event),
	}
}

func (t *roomTransport) Reply(connID string, ev protocol.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[connID] = append(t.replies[connID], ev)
}

func (t *roomTransport) Bind(connID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bound[connID] = userID
}

func (t *roomTransport) Subscribe(groupID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rooms[groupID] == nil {
		t.rooms[groupID] = make(map[string]bool)
	}
	t.rooms[groupID][userID] = true
}

func (t *roomTransport) Unsubscribe(groupID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms[groupID], userID)
}

func (t *roomTransport) Broadcast(groupID string, ev protocol.Event, exceptUserID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for userID := range t.rooms[groupID] {
		if userID == exceptUserID {
			continue
		}
		t.inbox[userID] = append(t.inbox[userID], ev)
	}
}

func (t *roomTransport) lastReply(connID string) protocol.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	evs := t.replies[connID]
	if len(evs) == 0 {
		return protocol.Event{}
	}
	return evs[len(evs)-1]
}

func (t *roomTransport) received(userID string) []protocol.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Event(nil), t.inbox[userID]...)
}

func (t *roomTransport) receivedNamed(userID, event string) []protocol.Event {
	var out []protocol.Event
	for _, ev := range t.received(userID) {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

func (t *roomTransport) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies = make(map[string][]protocol.Event)
	t.inbox = make(map[string][]protocol.Event)
}

type seqCodes struct {
	mu sync.Mutex
	n  int
}

func (s *seqCodes) NewCode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("GRP%03d", s.n), nil
}

func (s *seqCodes) Artifact(code string) (string, error) { return "qr:" + code, nil }

type fixture struct {
	clock     *clock.Manual
	registry  *registry.Registry
	transport *roomTransport
	engine    *engine.Engine
}

var epoch = time.UnixMilli(1_700_000_000_000)

func newFixture(t *testing.T, history engine.HistoryRecorder) *fixture {
	t.Helper()
	c := clock.NewManual(epoch)
	reg := registry.New(&seqCodes{}, c, 300*time.Millisecond)
	tr := newRoomTransport()
	return &fixture{
		clock:     c,
		registry:  reg,
		transport: tr,
		engine:    engine.New(reg, tr, c, history, nil),
	}
}

func identity(userID string) protocol.Identity {
	return protocol.Identity{UserID: userID, UserName: "name-" + userID}
}

func song(title string) json.RawMessage {
	return json.RawMessage(`{"title":"` + title + `"}`)
}

// origin mimics the hub: a connection speaks for the user it was bound to.
func (f *fixture) origin(connID string) engine.Origin {
	f.transport.mu.Lock()
	defer f.transport.mu.Unlock()
	return engine.Origin{ConnID: connID, UserID: f.transport.bound[connID]}
}

func (f *fixture) do(t *testing.T, connID string, cmd protocol.Command) error {
	t.Helper()
	return f.engine.Handle(context.Background(), f.origin(connID), cmd)
}

// group creates a group owned by u1 on conn c1 and joins the given users on
// conns named after them.
func (f *fixture) group(t *testing.T, others ...string) string {
	t.Helper()
	require.NoError(t, f.do(t, "c1", &protocol.CreateGroup{Name: "Test", Identity: identity("u1")}))
	created := f.transport.lastReply("c1")
	require.Equal(t, protocol.EventGroupCreated, created.Event)
	groupID := created.Data.(models.Group).ID
	for _, u := range others {
		require.NoError(t, f.do(t, "c-"+u, &protocol.JoinGroup{GroupID: groupID, Identity: identity(u)}))
	}
	f.transport.reset()
	return groupID
}

func TestCreateGroup_RepliesWithSnapshotAndArtifact(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.do(t, "c1", &protocol.CreateGroup{Name: "Test", Identity: identity("u1")}))

	ev := f.transport.lastReply("c1")
	require.Equal(t, protocol.EventGroupCreated, ev.Event)
	snap := ev.Data.(models.Group)
	assert.Equal(t, "GRP001", snap.ID)
	assert.Equal(t, "qr:GRP001", snap.QRCode)
	assert.Equal(t, "u1", snap.CreatedBy)
	assert.Equal(t, []models.Member{identity("u1").Member()}, snap.Members)
	assert.Equal(t, -1, snap.CurrentQueueIndex)
	assert.Equal(t, 1, f.registry.Count())
	assert.Equal(t, "u1", f.origin("c1").UserID)
}

func TestJoinUnknownGroup_NotFoundWithoutSideEffects(t *testing.T) {
	f := newFixture(t, nil)

	err := f.do(t, "c9", &protocol.JoinGroup{GroupID: "NOPE42", Identity: identity("u9")})

	require.ErrorIs(t, err, registry.ErrGroupNotFound)
	ev := f.transport.lastReply("c9")
	assert.Equal(t, protocol.EventGroupNotFound, ev.Event)
	assert.Equal(t, "NOPE42", ev.Data.(protocol.NotFoundPayload).GroupID)
	assert.Equal(t, 0, f.registry.Count())
	assert.Empty(t, f.origin("c9").UserID)
}

func TestJoin_SnapshotToJoinerNotificationToOthers(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t)
	require.NoError(t, f.do(t, "c1", &protocol.AddToQueue{GroupID: groupID, Song: song("A"), AddedBy: identity("u1")}))
	creatorView, err := f.registry.Snapshot(groupID)
	require.NoError(t, err)
	f.transport.reset()

	require.NoError(t, f.do(t, "c-u2", &protocol.JoinGroup{GroupID: groupID, Identity: identity("u2")}))

	joined := f.transport.lastReply("c-u2")
	require.Equal(t, protocol.EventGroupJoined, joined.Event)
	snap := joined.Data.(models.Group)
	assert.Equal(t, creatorView.Queue, snap.Queue)
	assert.Equal(t, creatorView.PlaybackState, snap.PlaybackState)
	assert.Len(t, snap.Members, 2)

	notices := f.transport.receivedNamed("u1", protocol.EventMemberJoined)
	require.Len(t, notices, 1)
	assert.Equal(t, "u2", notices[0].Data.(protocol.MemberJoinedPayload).Member.UserID)
	assert.Empty(t, f.transport.receivedNamed("u2", protocol.EventMemberJoined))
}

func TestRejoin_IdempotentForPresentMember(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")

	require.NoError(t, f.do(t, "c-u2b", &protocol.RejoinGroup{GroupID: groupID, Identity: identity("u2")}))
	first := f.transport.lastReply("c-u2b")
	require.NoError(t, f.do(t, "c-u2b", &protocol.RejoinGroup{GroupID: groupID, Identity: identity("u2")}))
	second := f.transport.lastReply("c-u2b")

	require.Equal(t, protocol.EventGroupRejoined, first.Event)
	assert.Equal(t, first.Data, second.Data)
	assert.Len(t, first.Data.(models.Group).Members, 2)
	assert.Empty(t, f.transport.receivedNamed("u1", protocol.EventMemberJoined))
}

func TestRejoin_AfterDisconnectAnnouncesMember(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")
	f.engine.Disconnect(context.Background(), "u2")

	require.NoError(t, f.do(t, "c-u2b", &protocol.RejoinGroup{GroupID: groupID, Identity: identity("u2")}))

	assert.Equal(t, protocol.EventGroupRejoined, f.transport.lastReply("c-u2b").Event)
	assert.Len(t, f.transport.receivedNamed("u1", protocol.EventMemberLeft), 1)
	assert.Len(t, f.transport.receivedNamed("u1", protocol.EventMemberJoined), 1)
}

func TestPlaybackToggle_ScheduledForEveryMember(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")
	require.NoError(t, f.do(t, "c1", &protocol.PlayNow{GroupID: groupID, Song: song("A"), AddedBy: identity("u1")}))
	f.clock.Advance(2 * time.Second)

	require.NoError(t, f.do(t, "c1", &protocol.PlaybackToggle{GroupID: groupID, IsPlaying: true, CurrentTime: 10}))

	want := clock.NowMillis(f.clock) + 300
	for _, u := range []string{"u1", "u2"} {
		updates := f.transport.receivedNamed(u, protocol.EventPlaybackUpdate)
		require.Len(t, updates, 1, u)
		up := updates[0].Data.(playback.Update)
		assert.True(t, up.IsPlaying)
		assert.Equal(t, 10.0, up.CurrentTime)
		assert.Equal(t, want, up.ScheduledTime)
		assert.GreaterOrEqual(t, clock.Delay(up.ScheduledTime, clock.NowMillis(f.clock)), int64(0))
	}
}

func TestPlayNow_JumpsAheadOfQueuedItems(t *testing.T) {
	history := new(mocks.HistoryRecorderMock)
	history.On("Record", mock.MatchedBy(func(rec models.PlayRecord) bool {
		return rec.Reason == protocol.QueueActionPlayNow && string(rec.Song) == `{"title":"B"}`
	})).Once()
	f := newFixture(t, history)
	groupID := f.group(t, "u2")

	require.NoError(t, f.do(t, "c1", &protocol.AddToQueue{GroupID: groupID, Song: song("A"), AddedBy: identity("u1")}))
	require.NoError(t, f.do(t, "c-u2", &protocol.PlayNow{GroupID: groupID, Song: song("B")}))

	music := f.transport.receivedNamed("u1", protocol.EventMusicUpdate)
	require.Len(t, music, 1)
	track := music[0].Data.(playback.TrackChange)
	assert.JSONEq(t, `{"title":"B"}`, string(track.Song))
	assert.True(t, track.AutoPlay)
	assert.Equal(t, "u2", track.QueueItem.AddedBy.UserID, "addedBy falls back to the sender")

	updates := f.transport.receivedNamed("u2", protocol.EventQueueUpdated)
	require.Len(t, updates, 2)
	last := updates[1].Data.(protocol.QueueUpdatedPayload)
	assert.Equal(t, protocol.QueueActionPlayNow, last.Action)
	require.Len(t, last.Queue, 2)
	assert.JSONEq(t, `{"title":"B"}`, string(last.Queue[0].Song))
	assert.JSONEq(t, `{"title":"A"}`, string(last.Queue[1].Song))
	assert.Equal(t, 0, last.CurrentQueueIndex)
	history.AssertExpectations(t)
}

func TestSkip_LastItemEndsQueue(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")
	require.NoError(t, f.do(t, "c1", &protocol.PlayNow{GroupID: groupID, Song: song("A")}))
	f.transport.reset()

	require.NoError(t, f.do(t, "c-u2", &protocol.SkipSong{GroupID: groupID}))

	ended := f.transport.receivedNamed("u1", protocol.EventQueueEnded)
	require.Len(t, ended, 1)
	payload := ended[0].Data.(protocol.QueueEndedPayload)
	assert.Nil(t, payload.PlaybackState.CurrentTrack)
	assert.False(t, payload.PlaybackState.IsPlaying)
	assert.Equal(t, -1, payload.CurrentQueueIndex)
	assert.Empty(t, f.transport.receivedNamed("u1", protocol.EventMusicUpdate))

	st, err := f.engine.SyncState(groupID)
	require.NoError(t, err)
	assert.Equal(t, -1, st.CurrentQueueIndex)
}

func TestSkip_AfterQueueEndedStartsNewItem(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")
	require.NoError(t, f.do(t, "c1", &protocol.PlayNow{GroupID: groupID, Song: song("A")}))
	require.NoError(t, f.do(t, "c1", &protocol.SkipSong{GroupID: groupID}))
	require.NoError(t, f.do(t, "c1", &protocol.AddToQueue{GroupID: groupID, Song: song("C")}))
	f.transport.reset()

	require.NoError(t, f.do(t, "c-u2", &protocol.SkipSong{GroupID: groupID}))

	music := f.transport.receivedNamed("u1", protocol.EventMusicUpdate)
	require.Len(t, music, 1)
	assert.JSONEq(t, `{"title":"C"}`, string(music[0].Data.(playback.TrackChange).Song))
	st, err := f.engine.SyncState(groupID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentQueueIndex)
}

func TestRemoveCurrent_SelectsFollowingItem(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t)
	for _, title := range []string{"A", "B", "C"} {
		require.NoError(t, f.do(t, "c1", &protocol.AddToQueue{GroupID: groupID, Song: song(title)}))
	}
	require.NoError(t, f.do(t, "c1", &protocol.SkipSong{GroupID: groupID}))
	require.NoError(t, f.do(t, "c1", &protocol.SkipSong{GroupID: groupID}))
	st, err := f.engine.SyncState(groupID)
	require.NoError(t, err)
	require.Equal(t, 1, st.CurrentQueueIndex)
	current, next := st.Queue[1], st.Queue[2]
	f.transport.reset()

	require.NoError(t, f.do(t, "c1", &protocol.RemoveFromQueue{GroupID: groupID, QueueItemID: current.ID, UserID: "u1"}))

	st, err = f.engine.SyncState(groupID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentQueueIndex)
	assert.Equal(t, next.ID, st.Queue[1].ID)
	for _, item := range st.Queue {
		assert.NotEqual(t, current.ID, item.ID)
	}
	music := f.transport.receivedNamed("u1", protocol.EventMusicUpdate)
	require.Len(t, music, 1)
	assert.Equal(t, next.ID, music[0].Data.(playback.TrackChange).QueueItem.ID)
}

func TestQueueError_OnlyOriginatorHears(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")
	require.NoError(t, f.do(t, "c1", &protocol.AddToQueue{GroupID: groupID, Song: song("A")}))
	f.transport.reset()

	err := f.do(t, "c-u2", &protocol.ReorderQueue{GroupID: groupID, FromIndex: 0, ToIndex: 5})

	var qerr *queue.Error
	require.True(t, errors.As(err, &qerr))
	ev := f.transport.lastReply("c-u2")
	assert.Equal(t, protocol.EventQueueError, ev.Event)
	assert.Equal(t, protocol.EventReorderQueue, ev.Data.(protocol.ErrorPayload).Action)
	assert.Empty(t, f.transport.received("u1"))
	assert.Empty(t, f.transport.received("u2"))
}

func TestNonMemberActionsRejected(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t)
	require.NoError(t, f.do(t, "c1", &protocol.PlayNow{GroupID: groupID, Song: song("A")}))
	f.transport.reset()

	err := f.do(t, "stranger", &protocol.AddToQueue{GroupID: groupID, Song: song("X")})
	require.ErrorIs(t, err, registry.ErrNotMember)
	assert.Equal(t, protocol.EventQueueError, f.transport.lastReply("stranger").Event)

	err = f.do(t, "stranger", &protocol.Seek{GroupID: groupID, CurrentTime: 5})
	require.ErrorIs(t, err, registry.ErrNotMember)
	assert.Equal(t, protocol.EventPlaybackError, f.transport.lastReply("stranger").Event)

	err = f.do(t, "stranger", &protocol.ChatMessage{GroupID: groupID, Message: "hi"})
	require.ErrorIs(t, err, registry.ErrNotMember)
	assert.Equal(t, protocol.EventError, f.transport.lastReply("stranger").Event)

	assert.Empty(t, f.transport.received("u1"))
}

func TestPlaybackRejections(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")

	err := f.do(t, "c1", &protocol.PlaybackToggle{GroupID: groupID, IsPlaying: true})
	require.ErrorIs(t, err, playback.ErrNoTrack)
	assert.Equal(t, protocol.EventPlaybackError, f.transport.lastReply("c1").Event)

	require.NoError(t, f.do(t, "c1", &protocol.PlayNow{GroupID: groupID, Song: song("A")}))
	f.transport.reset()

	err = f.do(t, "c-u2", &protocol.Seek{GroupID: groupID, CurrentTime: 30, QueueItemID: "old-item"})
	require.ErrorIs(t, err, playback.ErrStaleTrack)
	assert.Equal(t, protocol.EventPlaybackError, f.transport.lastReply("c-u2").Event)
	assert.Empty(t, f.transport.received("u1"))
}

func TestSongEnded_OnlyFirstReportAdvances(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")
	require.NoError(t, f.do(t, "c1", &protocol.AddToQueue{GroupID: groupID, Song: song("A")}))
	require.NoError(t, f.do(t, "c1", &protocol.AddToQueue{GroupID: groupID, Song: song("B")}))
	require.NoError(t, f.do(t, "c1", &protocol.SkipSong{GroupID: groupID}))
	st, err := f.engine.SyncState(groupID)
	require.NoError(t, err)
	first := st.Queue[0].ID
	f.transport.reset()

	require.NoError(t, f.do(t, "c1", &protocol.SongEnded{GroupID: groupID, SongID: first}))
	require.NoError(t, f.do(t, "c-u2", &protocol.SongEnded{GroupID: groupID, SongID: first}))

	music := f.transport.receivedNamed("u2", protocol.EventMusicUpdate)
	require.Len(t, music, 1)
	assert.Equal(t, st.Queue[1].ID, music[0].Data.(playback.TrackChange).QueueItem.ID)
	advances := f.transport.receivedNamed("u2", protocol.EventQueueUpdated)
	require.Len(t, advances, 1)
	assert.Equal(t, protocol.QueueActionAdvance, advances[0].Data.(protocol.QueueUpdatedPayload).Action)
}

func TestLeave_NotifiesOthersAndDeletesEmptyGroup(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")

	require.NoError(t, f.do(t, "c-u2", &protocol.LeaveGroup{GroupID: groupID, UserID: "u2"}))

	left := f.transport.receivedNamed("u1", protocol.EventMemberLeft)
	require.Len(t, left, 1)
	payload := left[0].Data.(protocol.MemberLeftPayload)
	assert.Equal(t, "u2", payload.UserID)
	assert.Equal(t, []models.Member{identity("u1").Member()}, payload.Members)
	assert.Empty(t, f.transport.received("u2"))

	require.NoError(t, f.do(t, "c1", &protocol.LeaveGroup{GroupID: groupID, UserID: "u1"}))
	assert.Equal(t, 0, f.registry.Count())

	err := f.do(t, "c1", &protocol.RequestSync{GroupID: groupID})
	require.ErrorIs(t, err, registry.ErrGroupNotFound)
	assert.Equal(t, protocol.EventGroupNotFound, f.transport.lastReply("c1").Event)
}

func TestJoin_BoundConnectionCannotSwitchUser(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")

	err := f.do(t, "c-u2", &protocol.JoinGroup{GroupID: groupID, Identity: identity("u3")})
	require.ErrorIs(t, err, engine.ErrIdentityMismatch)
	assert.Equal(t, protocol.EventGroupError, f.transport.lastReply("c-u2").Event)

	err = f.do(t, "c1", &protocol.CreateGroup{Name: "Other", Identity: identity("u9")})
	require.ErrorIs(t, err, engine.ErrIdentityMismatch)
	assert.Equal(t, 1, f.registry.Count())

	snap, err := f.registry.Snapshot(groupID)
	require.NoError(t, err)
	assert.False(t, snap.HasMember("u3"))
	assert.Equal(t, "u2", f.origin("c-u2").UserID)
}

func TestLeave_CannotRemoveAnotherMember(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2", "u3")

	err := f.do(t, "c-u2", &protocol.LeaveGroup{GroupID: groupID, UserID: "u3"})
	require.ErrorIs(t, err, registry.ErrNotMember)
	assert.Equal(t, protocol.EventGroupError, f.transport.lastReply("c-u2").Event)

	snap, err := f.registry.Snapshot(groupID)
	require.NoError(t, err)
	assert.True(t, snap.HasMember("u2"))
	assert.True(t, snap.HasMember("u3"))
	assert.Empty(t, f.transport.receivedNamed("u1", protocol.EventMemberLeft))
}

func TestDisband_CannotImpersonateCreator(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")

	err := f.do(t, "c-u2", &protocol.DisbandGroup{GroupID: groupID, UserID: "u1"})
	require.ErrorIs(t, err, registry.ErrNotCreator)
	assert.Equal(t, protocol.EventGroupError, f.transport.lastReply("c-u2").Event)
	assert.Equal(t, 1, f.registry.Count())
	assert.Empty(t, f.transport.receivedNamed("u2", protocol.EventGroupDisbanded))

	// an unbound connection speaks for nobody
	err = f.do(t, "stranger", &protocol.LeaveGroup{GroupID: groupID, UserID: "u1"})
	require.ErrorIs(t, err, registry.ErrNotMember)
	assert.Equal(t, 1, f.registry.Count())
}

func TestDisband(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2", "u3")

	err := f.do(t, "c-u2", &protocol.DisbandGroup{GroupID: groupID, UserID: "u2"})
	require.ErrorIs(t, err, registry.ErrNotCreator)
	assert.Equal(t, protocol.EventGroupError, f.transport.lastReply("c-u2").Event)
	assert.Equal(t, 1, f.registry.Count())

	require.NoError(t, f.do(t, "c1", &protocol.DisbandGroup{GroupID: groupID, UserID: "u1"}))

	assert.Equal(t, 0, f.registry.Count())
	for _, u := range []string{"u2", "u3"} {
		assert.Len(t, f.transport.receivedNamed(u, protocol.EventGroupDisbanded), 1, u)
	}
	assert.Empty(t, f.transport.receivedNamed("u1", protocol.EventGroupDisbanded))
	assert.Empty(t, f.transport.rooms[groupID])
}

func TestChatRelay_StampsServerTime(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t, "u2")
	extra := map[string]json.RawMessage{"senderName": json.RawMessage(`"Ann"`)}

	require.NoError(t, f.do(t, "c1", &protocol.ChatMessage{GroupID: groupID, SenderID: "u1", Message: "hello", Extra: extra}))

	for _, u := range []string{"u1", "u2"} {
		msgs := f.transport.receivedNamed(u, protocol.EventNewMessage)
		require.Len(t, msgs, 1)
		msg := msgs[0].Data.(models.ChatMessage)
		assert.Equal(t, "hello", msg.Message)
		assert.Equal(t, clock.NowMillis(f.clock), msg.Timestamp)
		assert.Equal(t, extra, msg.Extra)
	}
}

func TestTimeSyncAndRequestSync(t *testing.T) {
	f := newFixture(t, nil)
	groupID := f.group(t)

	require.NoError(t, f.do(t, "anon", &protocol.TimeSyncRequest{ClientTime: 123}))
	reply := f.transport.lastReply("anon")
	require.Equal(t, protocol.EventTimeSyncResponse, reply.Event)
	assert.Equal(t, clock.SyncReply{ClientTime: 123, ServerTime: clock.NowMillis(f.clock)}, reply.Data)

	require.NoError(t, f.do(t, "c1", &protocol.PlayNow{GroupID: groupID, Song: song("A")}))
	require.NoError(t, f.do(t, "c1", &protocol.RequestSync{GroupID: groupID}))
	reply = f.transport.lastReply("c1")
	require.Equal(t, protocol.EventSyncState, reply.Event)
	st := reply.Data.(models.SyncState)
	assert.Equal(t, 0, st.CurrentQueueIndex)
	assert.True(t, st.PlaybackState.IsPlaying)
}

func TestCreateGroup_AuditAndTransportCalls(t *testing.T) {
	c := clock.NewManual(epoch)
	reg := registry.New(&seqCodes{}, c, 0)
	tr := new(mocks.TransportMock)
	audit := new(mocks.AuditorMock)
	e := engine.New(reg, tr, c, nil, audit)

	tr.On("Bind", "c1", "u1").Once()
	tr.On("Subscribe", "GRP001", "u1").Once()
	tr.On("Reply", "c1", mock.MatchedBy(func(ev protocol.Event) bool { return ev.Event == protocol.EventGroupCreated })).Once()
	audit.On("EmitGroup", mock.Anything, "group_created", "GRP001", "u1", "req-1", mock.Anything).Once()

	err := e.Handle(context.Background(), engine.Origin{ConnID: "c1", RequestID: "req-1"}, &protocol.CreateGroup{Name: "Test", Identity: identity("u1")})

	require.NoError(t, err)
	tr.AssertExpectations(t)
	audit.AssertExpectations(t)
}
