// Package playback is the authoritative playback state machine of a group.
//
// Every transition is scheduled: the coordinator stamps it with a shared-clock
// execution time a short lookahead in the future, and every member (the
// originator included) applies it at that instant.
package playback

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"sync-service/internal/clock"
	"sync-service/internal/models"
	"sync-service/internal/queue"
)

var (
	ErrNoTrack         = errors.New("no track loaded")
	ErrStaleTrack      = errors.New("action references a track that is no longer current")
	ErrInvalidPosition = errors.New("invalid playback position")
)

// DefaultLookahead gives clients time to receive and arm a scheduled action.
const DefaultLookahead = 300 * time.Millisecond

// Phase is the coarse state of the machine.
type Phase int

const (
	Idle Phase = iota
	Loaded
	Playing
)

func (p Phase) String() string {
	switch p {
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	default:
		return "idle"
	}
}

// Update is the scheduled play/pause/seek broadcast.
type Update struct {
	IsPlaying     bool    `json:"isPlaying"`
	CurrentTime   float64 `json:"currentTime"`
	ScheduledTime int64   `json:"scheduledTime"`
	QueueItemID   string  `json:"queueItemId,omitempty"`
}

// TrackChange is the scheduled broadcast for a newly selected track.
type TrackChange struct {
	Song          json.RawMessage  `json:"song"`
	CurrentTime   float64          `json:"currentTime"`
	QueueItem     models.QueueItem `json:"queueItem"`
	AutoPlay      bool             `json:"autoPlay"`
	ScheduledTime int64            `json:"scheduledTime"`
}

// OutcomeKind tells the caller what to broadcast after a queue transition.
type OutcomeKind int

const (
	NoChange OutcomeKind = iota
	TrackChanged
	QueueEnded
)

// Outcome is the playback effect of a queue transition.
type Outcome struct {
	Kind  OutcomeKind
	Track TrackChange
}

// Coordinator owns a group's playback state and drives its queue. It is not
// safe for concurrent use; the owning group serialises access.
type Coordinator struct {
	queue     *queue.Queue
	clock     clock.Clock
	lookahead time.Duration
	state     models.PlaybackState
}

// New returns an idle coordinator over q.
func New(q *queue.Queue, c clock.Clock, lookahead time.Duration) *Coordinator {
	if c == nil {
		c = clock.System{}
	}
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	return &Coordinator{
		queue:     q,
		clock:     c,
		lookahead: lookahead,
		state:     models.PlaybackState{LastUpdate: clock.NowMillis(c)},
	}
}

// Queue exposes the queue driven by this coordinator.
func (c *Coordinator) Queue() *queue.Queue { return c.queue }

// State returns the authoritative playback state.
func (c *Coordinator) State() models.PlaybackState { return c.state }

// Phase reports Idle, Loaded or Playing.
func (c *Coordinator) Phase() Phase {
	if c.state.CurrentTrack == nil {
		return Idle
	}
	if c.state.IsPlaying {
		return Playing
	}
	return Loaded
}

// Snapshot returns the drift-correction snapshot.
func (c *Coordinator) Snapshot() models.SyncState {
	return models.SyncState{
		PlaybackState:     c.state,
		Queue:             c.queue.Items(),
		CurrentQueueIndex: c.queue.Index(),
	}
}

// Toggle plays or pauses at the reported position.
func (c *Coordinator) Toggle(isPlaying bool, position float64, queueItemID string) (Update, error) {
	cur, err := c.checkAction(position, queueItemID)
	if err != nil {
		return Update{}, err
	}
	return c.apply(isPlaying, position, cur.ID), nil
}

// Seek moves the position while keeping the play/pause state.
func (c *Coordinator) Seek(position float64, queueItemID string) (Update, error) {
	cur, err := c.checkAction(position, queueItemID)
	if err != nil {
		return Update{}, err
	}
	return c.apply(c.state.IsPlaying, position, cur.ID), nil
}

// PlayNow jumps the line with song and starts it.
func (c *Coordinator) PlayNow(song json.RawMessage, addedBy models.Member) (TrackChange, error) {
	item, err := c.queue.PlayNow(song, addedBy)
	if err != nil {
		return TrackChange{}, err
	}
	return c.load(item, true), nil
}

// Skip advances to the next queued item or ends the queue.
func (c *Coordinator) Skip() Outcome {
	next, ok := c.queue.Skip()
	if !ok {
		return c.end()
	}
	return Outcome{Kind: TrackChanged, Track: c.load(next, true)}
}

// SongEnded advances only if queueItemID is still current; a stale report
// returns NoChange without touching state.
func (c *Coordinator) SongEnded(queueItemID string) Outcome {
	next, ok, advanced := c.queue.AdvanceOnSongEnded(queueItemID)
	if !advanced {
		return Outcome{Kind: NoChange}
	}
	if !ok {
		return c.end()
	}
	return Outcome{Kind: TrackChanged, Track: c.load(next, true)}
}

// Remove deletes a queue item. Removing the current item moves on to the
// following one, keeping the previous play/pause state, or ends the queue.
func (c *Coordinator) Remove(queueItemID string) (queue.RemoveResult, Outcome, error) {
	res, err := c.queue.Remove(queueItemID)
	if err != nil {
		return res, Outcome{}, err
	}
	if !res.WasCurrent {
		return res, Outcome{Kind: NoChange}, nil
	}
	if !res.HasNext {
		return res, c.end(), nil
	}
	return res, Outcome{Kind: TrackChanged, Track: c.load(res.Next, c.state.IsPlaying)}, nil
}

func (c *Coordinator) checkAction(position float64, queueItemID string) (models.QueueItem, error) {
	cur, ok := c.queue.Current()
	if !ok || c.state.CurrentTrack == nil {
		return models.QueueItem{}, ErrNoTrack
	}
	if queueItemID != "" && queueItemID != cur.ID {
		return models.QueueItem{}, ErrStaleTrack
	}
	if math.IsNaN(position) || math.IsInf(position, 0) || position < 0 {
		return models.QueueItem{}, ErrInvalidPosition
	}
	return cur, nil
}

func (c *Coordinator) apply(isPlaying bool, position float64, itemID string) Update {
	now := c.clock.Now()
	c.state.IsPlaying = isPlaying
	c.state.CurrentTime = position
	c.state.LastUpdate = clock.Millis(now)
	return Update{
		IsPlaying:     isPlaying,
		CurrentTime:   position,
		ScheduledTime: c.scheduleAt(now),
		QueueItemID:   itemID,
	}
}

func (c *Coordinator) load(item models.QueueItem, autoPlay bool) TrackChange {
	now := c.clock.Now()
	c.state = models.PlaybackState{
		IsPlaying:    autoPlay,
		CurrentTrack: item.Song,
		CurrentTime:  0,
		LastUpdate:   clock.Millis(now),
	}
	return TrackChange{
		Song:          item.Song,
		CurrentTime:   0,
		QueueItem:     item,
		AutoPlay:      autoPlay,
		ScheduledTime: c.scheduleAt(now),
	}
}

func (c *Coordinator) end() Outcome {
	c.state = models.PlaybackState{LastUpdate: clock.NowMillis(c.clock)}
	return Outcome{Kind: QueueEnded}
}

func (c *Coordinator) scheduleAt(now time.Time) int64 {
	return clock.Millis(now.Add(c.lookahead))
}
