package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sync-service/internal/clock"
	"sync-service/internal/models"
	"sync-service/internal/playback"
	"sync-service/internal/protocol"
)

var (
	ErrClosed  = errors.New("client closed")
	ErrNoGroup = errors.New("not in a group")
	ErrNoTrack = errors.New("nothing is playing")
)

const (
	DefaultResyncInterval = 5 * time.Second
	DefaultDriftInterval  = 5 * time.Second

	writeWait    = 10 * time.Second
	eventsBuffer = 64
)

// Options configures a Client. Only Identity is required.
type Options struct {
	Identity protocol.Identity
	Player   Player
	Store    PointerStore
	Clock    clock.Clock
	After    AfterFunc

	// ResyncInterval is the period of the time-sync exchange.
	ResyncInterval time.Duration
	// DriftInterval is the period of request-sync while in a group.
	DriftInterval  time.Duration
	DriftThreshold float64

	Dialer *websocket.Dialer
	Header http.Header
}

// Client is one member's connection to the sync service. Playback is only
// ever driven by server broadcasts, applied at their scheduled instant.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	identity  protocol.Identity
	player    Player
	store     PointerStore
	clock     *ClockSync
	sched     *Scheduler
	view      *View
	threshold float64
	resync    time.Duration
	drift     time.Duration

	events    chan protocol.Envelope
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Dial connects to the websocket endpoint at url, starts the read and
// polling loops, runs a first clock sync and rejoins the saved group if the
// store holds one.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := newClient(conn, opts)
	c.wg.Add(2)
	go c.readLoop()
	go c.pollLoop()

	if err := c.SyncClock(); err != nil {
		c.Close()
		return nil, err
	}
	if _, err := c.Rejoin(); err != nil {
		c.Close()
		return nil, err
	}
	log.Printf("client connected url=%s user_id=%s", url, opts.Identity.UserID)
	return c, nil
}

func newClient(conn *websocket.Conn, opts Options) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:      conn,
		identity:  opts.Identity,
		player:    opts.Player,
		store:     opts.Store,
		clock:     NewClockSync(opts.Clock),
		sched:     NewScheduler(opts.After),
		view:      NewView(),
		threshold: opts.DriftThreshold,
		resync:    opts.ResyncInterval,
		drift:     opts.DriftInterval,
		events:    make(chan protocol.Envelope, eventsBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
	if c.player == nil {
		c.player = nopPlayer{}
	}
	if c.store == nil {
		c.store = &MemoryStore{}
	}
	if c.threshold <= 0 {
		c.threshold = DefaultDriftThreshold
	}
	if c.resync <= 0 {
		c.resync = DefaultResyncInterval
	}
	if c.drift <= 0 {
		c.drift = DefaultDriftInterval
	}
	return c
}

// Events delivers every server event after the client applied it. The
// channel is closed when the connection ends.
func (c *Client) Events() <-chan protocol.Envelope { return c.events }

// Done is closed once the client stops.
func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Client) View() *View { return c.view }

func (c *Client) ClockSync() *ClockSync { return c.clock }

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close disconnects. The saved group pointer is kept for a later rejoin.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		live := c.ctx.Err() == nil
		c.cancel()
		if live {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
		err = c.conn.Close()
		c.writeMu.Unlock()

		if gid := c.view.GroupID(); gid != "" {
			c.sched.Cancel(gid)
		}
	})
	c.wg.Wait()
	return err
}

func (c *Client) CreateGroup(name string) error {
	return c.send(&protocol.CreateGroup{Name: name, Identity: c.identity})
}

func (c *Client) JoinGroup(groupID string) error {
	return c.send(&protocol.JoinGroup{GroupID: groupID, Identity: c.identity})
}

// Rejoin asks for the group held by the pointer store. It reports false
// when there is nothing to rejoin.
func (c *Client) Rejoin() (bool, error) {
	groupID, ok, err := c.store.Load()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return true, c.send(&protocol.RejoinGroup{GroupID: groupID, Identity: c.identity})
}

// Leave exits the current group and forgets the pointer.
func (c *Client) Leave() error {
	gid := c.view.GroupID()
	if gid == "" {
		return ErrNoGroup
	}
	if err := c.send(&protocol.LeaveGroup{GroupID: gid, UserID: c.identity.UserID}); err != nil {
		return err
	}
	c.forget(gid)
	return nil
}

// Disband deletes the current group. Only its creator may do this; the
// server answers anyone else with group-error.
func (c *Client) Disband() error {
	gid := c.view.GroupID()
	if gid == "" {
		return ErrNoGroup
	}
	if err := c.send(&protocol.DisbandGroup{GroupID: gid, UserID: c.identity.UserID}); err != nil {
		return err
	}
	if g, _ := c.view.Authoritative(); g.CreatedBy == c.identity.UserID {
		c.forget(gid)
	}
	return nil
}

// AddToQueue appends song. The returned placeholder shows in the optimistic
// view until the server's queue-updated replaces it.
func (c *Client) AddToQueue(song json.RawMessage) (models.QueueItem, error) {
	gid := c.view.GroupID()
	if gid == "" {
		return models.QueueItem{}, ErrNoGroup
	}
	if err := c.send(&protocol.AddToQueue{GroupID: gid, Song: song, AddedBy: c.identity}); err != nil {
		return models.QueueItem{}, err
	}
	return c.view.PendingAdd(song, c.identity.Member(), c.clock.SharedNow()), nil
}

func (c *Client) PlayNow(song json.RawMessage) error {
	gid := c.view.GroupID()
	if gid == "" {
		return ErrNoGroup
	}
	return c.send(&protocol.PlayNow{GroupID: gid, Song: song, AddedBy: c.identity})
}

func (c *Client) Remove(queueItemID string) error {
	gid := c.view.GroupID()
	if gid == "" {
		return ErrNoGroup
	}
	if err := c.send(&protocol.RemoveFromQueue{GroupID: gid, QueueItemID: queueItemID, UserID: c.identity.UserID}); err != nil {
		return err
	}
	c.view.PendingRemove(queueItemID)
	return nil
}

func (c *Client) Reorder(from, to int) error {
	gid := c.view.GroupID()
	if gid == "" {
		return ErrNoGroup
	}
	return c.send(&protocol.ReorderQueue{GroupID: gid, FromIndex: from, ToIndex: to})
}

func (c *Client) Skip() error {
	gid := c.view.GroupID()
	if gid == "" {
		return ErrNoGroup
	}
	return c.send(&protocol.SkipSong{GroupID: gid})
}

// Toggle asks the group to play or pause at the local position. The local
// player is not touched until the scheduled playback-update fires.
func (c *Client) Toggle(isPlaying bool) error {
	gid, item, err := c.current()
	if err != nil {
		return err
	}
	pos := c.player.Position()
	if err := c.send(&protocol.PlaybackToggle{GroupID: gid, IsPlaying: isPlaying, CurrentTime: pos, QueueItemID: item.ID}); err != nil {
		return err
	}
	c.view.PendingPlayback(isPlaying, pos, c.clock.SharedNow())
	return nil
}

func (c *Client) Seek(seconds float64) error {
	gid, item, err := c.current()
	if err != nil {
		return err
	}
	if err := c.send(&protocol.Seek{GroupID: gid, CurrentTime: seconds, QueueItemID: item.ID}); err != nil {
		return err
	}
	c.view.PendingPlayback(c.player.Playing(), seconds, c.clock.SharedNow())
	return nil
}

// TrackEnded reports that the local player reached the end of the current
// item. Reports for an item that is no longer current are ignored by the
// server.
func (c *Client) TrackEnded() error {
	gid, item, err := c.current()
	if err != nil {
		return err
	}
	return c.send(&protocol.SongEnded{GroupID: gid, SongID: item.ID})
}

func (c *Client) RequestSync() error {
	gid := c.view.GroupID()
	if gid == "" {
		return ErrNoGroup
	}
	return c.send(&protocol.RequestSync{GroupID: gid})
}

// SyncClock starts a time-sync exchange; the offset is updated when the
// response arrives.
func (c *Client) SyncClock() error {
	return c.send(&protocol.TimeSyncRequest{ClientTime: c.clock.LocalNow()})
}

func (c *Client) Chat(message string, extra map[string]json.RawMessage) error {
	gid := c.view.GroupID()
	if gid == "" {
		return ErrNoGroup
	}
	return c.send(&protocol.ChatMessage{GroupID: gid, SenderID: c.identity.UserID, Message: message, Extra: extra})
}

func (c *Client) current() (string, models.QueueItem, error) {
	gid := c.view.GroupID()
	if gid == "" {
		return "", models.QueueItem{}, ErrNoGroup
	}
	item, ok := c.view.CurrentItem()
	if !ok {
		return "", models.QueueItem{}, ErrNoTrack
	}
	return gid, item, nil
}

func (c *Client) send(cmd protocol.Command) error {
	raw, err := protocol.Encode(protocol.Event{Event: cmd.EventName(), Data: cmd})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("send %s: %w", cmd.EventName(), err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.events)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
				log.Printf("client read error user_id=%s err=%v", c.identity.UserID, err)
			}
			c.cancel()
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("client dropped frame err=%v", err)
			continue
		}
		if err := c.handle(env); err != nil {
			log.Printf("client event failed event=%s err=%v", env.Event, err)
		}
		select {
		case c.events <- env:
		default:
			log.Printf("client events buffer full, dropped event=%s", env.Event)
		}
	}
}

func (c *Client) pollLoop() {
	defer c.wg.Done()
	resync := time.NewTicker(c.resync)
	defer resync.Stop()
	drift := time.NewTicker(c.drift)
	defer drift.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-resync.C:
			if err := c.SyncClock(); err != nil && !errors.Is(err, ErrClosed) {
				log.Printf("client clock sync failed err=%v", err)
			}
		case <-drift.C:
			if c.view.GroupID() == "" {
				continue
			}
			if err := c.RequestSync(); err != nil && !errors.Is(err, ErrClosed) {
				log.Printf("client request sync failed err=%v", err)
			}
		}
	}
}

func (c *Client) handle(env protocol.Envelope) error {
	switch env.Event {
	case protocol.EventTimeSyncResponse:
		var r clock.SyncReply
		if err := decode(env, &r); err != nil {
			return err
		}
		c.clock.Observe(r.ClientTime, r.ServerTime, c.clock.LocalNow())

	case protocol.EventGroupCreated, protocol.EventGroupJoined, protocol.EventGroupRejoined:
		var g models.Group
		if err := decode(env, &g); err != nil {
			return err
		}
		return c.enter(g)

	case protocol.EventGroupNotFound:
		var p protocol.NotFoundPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		c.forget(p.GroupID)

	case protocol.EventGroupDisbanded:
		var p protocol.DisbandedPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		c.forget(p.GroupID)

	case protocol.EventMemberJoined:
		var p protocol.MemberJoinedPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		c.view.ApplyMembers(p.Members)

	case protocol.EventMemberLeft:
		var p protocol.MemberLeftPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		c.view.ApplyMembers(p.Members)

	case protocol.EventQueueUpdated:
		var p protocol.QueueUpdatedPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		c.view.ApplyQueue(p)

	case protocol.EventQueueEnded:
		var p protocol.QueueEndedPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		c.sched.Cancel(p.GroupID)
		c.view.ApplyQueueEnded(p)
		c.player.Stop()

	case protocol.EventPlaybackUpdate:
		var u playback.Update
		if err := decode(env, &u); err != nil {
			return err
		}
		c.schedulePlayback(u)

	case protocol.EventMusicUpdate:
		var t playback.TrackChange
		if err := decode(env, &t); err != nil {
			return err
		}
		return c.scheduleTrack(t)

	case protocol.EventSyncState:
		var s models.SyncState
		if err := decode(env, &s); err != nil {
			return err
		}
		c.view.ApplySync(s)
		c.correct(s.PlaybackState)
	}
	return nil
}

// enter rebuilds local state from a full snapshot.
func (c *Client) enter(g models.Group) error {
	if prev := c.view.GroupID(); prev != "" && prev != g.ID {
		c.sched.Cancel(prev)
	}
	c.sched.Cancel(g.ID)
	c.view.Reset(g)
	if err := c.store.Save(g.ID); err != nil {
		log.Printf("client save group pointer failed group_id=%s err=%v", g.ID, err)
	}

	st := g.PlaybackState
	if st.CurrentTrack == nil {
		c.player.Stop()
		return nil
	}
	if err := c.player.Load(st.CurrentTrack); err != nil {
		return fmt.Errorf("load track: %w", err)
	}
	c.player.Seek(st.PositionAt(c.clock.SharedNow()))
	if st.IsPlaying {
		c.player.Play()
	} else {
		c.player.Pause()
	}
	return nil
}

// forget drops all local state for groupID, including the saved pointer.
func (c *Client) forget(groupID string) {
	if saved, ok, _ := c.store.Load(); ok && saved == groupID {
		if err := c.store.Clear(); err != nil {
			log.Printf("client clear group pointer failed group_id=%s err=%v", groupID, err)
		}
	}
	if c.view.GroupID() != groupID {
		return
	}
	c.sched.Cancel(groupID)
	c.view.Clear()
	c.player.Stop()
}

func (c *Client) schedulePlayback(u playback.Update) {
	gid := c.view.GroupID()
	c.view.ApplyPlayback(u)
	c.sched.Schedule(gid, c.delay(u.ScheduledTime), func() {
		c.player.Seek(c.startAt(u.CurrentTime, u.ScheduledTime, u.IsPlaying))
		if u.IsPlaying {
			c.player.Play()
		} else {
			c.player.Pause()
		}
	})
}

func (c *Client) scheduleTrack(t playback.TrackChange) error {
	gid := c.view.GroupID()
	c.view.ApplyTrack(t)
	c.sched.Cancel(gid)
	if err := c.player.Load(t.Song); err != nil {
		return fmt.Errorf("load track: %w", err)
	}
	c.sched.Schedule(gid, c.delay(t.ScheduledTime), func() {
		c.player.Seek(c.startAt(t.CurrentTime, t.ScheduledTime, t.AutoPlay))
		if t.AutoPlay {
			c.player.Play()
		} else {
			c.player.Pause()
		}
	})
	return nil
}

// correct snaps the player to the authoritative position. A pending
// scheduled transition takes precedence and skips the check.
func (c *Client) correct(st models.PlaybackState) {
	gid := c.view.GroupID()
	if gid == "" || c.sched.Pending(gid) {
		return
	}
	if st.CurrentTrack == nil {
		if c.player.Playing() {
			c.player.Pause()
		}
		return
	}
	expected, snap := Correction(st, c.clock.SharedNow(), c.player.Position(), c.threshold)
	if snap {
		log.Printf("client drift correction group_id=%s expected=%.3f", gid, expected)
		c.player.Seek(expected)
	}
	switch playing := c.player.Playing(); {
	case st.IsPlaying && !playing:
		c.player.Play()
	case !st.IsPlaying && playing:
		c.player.Pause()
	}
}

func (c *Client) delay(scheduledTime int64) time.Duration {
	return time.Duration(c.clock.DelayUntil(scheduledTime)) * time.Millisecond
}

// startAt is the position to start from when a scheduled action fires late,
// for example after a slow track load.
func (c *Client) startAt(position float64, scheduledTime int64, playing bool) float64 {
	if !playing {
		return position
	}
	if late := c.clock.SharedNow() - scheduledTime; late > 0 {
		return position + float64(late)/1000.0
	}
	return position
}

func decode(env protocol.Envelope, v any) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", protocol.ErrMalformed, env.Event, err)
	}
	return nil
}

type nopPlayer struct{}

func (nopPlayer) Load(json.RawMessage) error { return nil }
func (nopPlayer) Play() {}
func (nopPlayer) Pause() {}
func (nopPlayer) Seek(float64) {}
func (nopPlayer) Stop() {}
func (nopPlayer) Position() float64 { return 0 }
func (nopPlayer) Playing() bool { return false }
