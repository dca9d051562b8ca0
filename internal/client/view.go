package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"sync-service/internal/models"
	"sync-service/internal/playback"
	"sync-service/internal/protocol"
)

// View is the client's picture of its group. It keeps the last authoritative
// snapshot the server sent apart from local edits that have not been
// confirmed yet; any authoritative event for the same part of the state
// discards the local edits.
type View struct {
	mu     sync.RWMutex
	group  models.Group
	active bool

	adds     []models.QueueItem
	removed  map[string]struct{}
	playback *models.PlaybackState
	seq      int
}

func NewView() *View {
	return &View{removed: make(map[string]struct{})}
}

// Reset replaces everything with a join/rejoin/create snapshot.
func (v *View) Reset(g models.Group) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.group = g
	v.active = true
	v.dropQueueEditsLocked()
	v.playback = nil
}

// Clear forgets the group.
func (v *View) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.group = models.Group{}
	v.active = false
	v.dropQueueEditsLocked()
	v.playback = nil
}

// GroupID returns the joined group, or "".
func (v *View) GroupID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.active {
		return ""
	}
	return v.group.ID
}

// Authoritative returns the server's version of the group.
func (v *View) Authoritative() (models.Group, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return cloneGroup(v.group), v.active
}

// Optimistic returns the authoritative group with unconfirmed local edits
// applied on top.
func (v *View) Optimistic() models.Group {
	v.mu.RLock()
	defer v.mu.RUnlock()
	g := cloneGroup(v.group)
	if len(v.removed) > 0 {
		kept := g.Queue[:0]
		for _, it := range g.Queue {
			if _, gone := v.removed[it.ID]; !gone {
				kept = append(kept, it)
			}
		}
		g.Queue = kept
	}
	g.Queue = append(g.Queue, v.adds...)
	if v.playback != nil {
		g.PlaybackState = *v.playback
	}
	return g
}

// CurrentItem is the authoritative now-playing queue item.
func (v *View) CurrentItem() (models.QueueItem, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	i := v.group.CurrentQueueIndex
	if i < 0 || i >= len(v.group.Queue) {
		return models.QueueItem{}, false
	}
	return v.group.Queue[i], true
}

// PendingAdd records a local append awaiting queue-updated.
func (v *View) PendingAdd(song json.RawMessage, by models.Member, at int64) models.QueueItem {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	item := models.QueueItem{ID: fmt.Sprintf("pending-%d", v.seq), Song: song, AddedBy: by, AddedAt: at}
	v.adds = append(v.adds, item)
	return item
}

// PendingRemove hides an item locally until the server confirms.
func (v *View) PendingRemove(queueItemID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.removed[queueItemID] = struct{}{}
}

// PendingPlayback records a transport change the user already applied.
func (v *View) PendingPlayback(isPlaying bool, position float64, at int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := v.group.PlaybackState
	st.IsPlaying = isPlaying
	st.CurrentTime = position
	st.LastUpdate = at
	v.playback = &st
}

func (v *View) ApplyMembers(members []models.Member) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.group.Members = members
}

func (v *View) ApplyQueue(p protocol.QueueUpdatedPayload) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.group.Queue = p.Queue
	v.group.CurrentQueueIndex = p.CurrentQueueIndex
	v.dropQueueEditsLocked()
}

func (v *View) ApplyQueueEnded(p protocol.QueueEndedPayload) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.group.PlaybackState = p.PlaybackState
	v.group.CurrentQueueIndex = p.CurrentQueueIndex
	v.playback = nil
}

// ApplyPlayback stores a scheduled transport change. The state is taken as
// accurate at the instant it is scheduled to run.
func (v *View) ApplyPlayback(u playback.Update) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.group.PlaybackState.IsPlaying = u.IsPlaying
	v.group.PlaybackState.CurrentTime = u.CurrentTime
	v.group.PlaybackState.LastUpdate = u.ScheduledTime
	v.playback = nil
}

func (v *View) ApplyTrack(t playback.TrackChange) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.group.PlaybackState = models.PlaybackState{
		IsPlaying:    t.AutoPlay,
		CurrentTrack: t.Song,
		CurrentTime:  t.CurrentTime,
		LastUpdate:   t.ScheduledTime,
	}
	for i, it := range v.group.Queue {
		if it.ID == t.QueueItem.ID {
			v.group.CurrentQueueIndex = i
		}
	}
	v.playback = nil
}

func (v *View) ApplySync(s models.SyncState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.group.PlaybackState = s.PlaybackState
	v.group.Queue = s.Queue
	v.group.CurrentQueueIndex = s.CurrentQueueIndex
	v.dropQueueEditsLocked()
	v.playback = nil
}

func (v *View) dropQueueEditsLocked() {
	v.adds = nil
	v.removed = make(map[string]struct{})
}

func cloneGroup(g models.Group) models.Group {
	g.Members = append([]models.Member(nil), g.Members...)
	g.Queue = append([]models.QueueItem(nil), g.Queue...)
	return g
}
