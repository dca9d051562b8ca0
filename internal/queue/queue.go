// Package queue implements the ordered play queue owned by a group.
//
// Items before the current index have been played, the item at the index is
// now playing and items after it are upcoming. The index is -1 when nothing is
// selected; once the queue has run out a resume point marks where the played
// items end. Every mutation keeps the index at -1 or a valid position.
package queue

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"

	"sync-service/internal/clock"
	"sync-service/internal/models"
)

// Queue is not safe for concurrent use; the owning group serialises access.
type Queue struct {
	items   []models.QueueItem
	current int
	// resume is the first unplayed item while nothing is selected.
	resume  int
	clock   clock.Clock
	newID   func() string
}

// New returns an empty queue with nothing selected.
func New(c clock.Clock) *Queue {
	if c == nil {
		c = clock.System{}
	}
	return &Queue{current: -1, clock: c, newID: uuid.NewString}
}

// Len returns the number of items.
func (q *Queue) Len() int { return len(q.items) }

// Index returns the current index, or -1.
func (q *Queue) Index() int { return q.current }

// Items returns a copy of the queue contents.
func (q *Queue) Items() []models.QueueItem {
	out := make([]models.QueueItem, len(q.items))
	copy(out, q.items)
	return out
}

// Current returns the now-playing item.
func (q *Queue) Current() (models.QueueItem, bool) {
	if q.current < 0 || q.current >= len(q.items) {
		return models.QueueItem{}, false
	}
	return q.items[q.current], true
}

// Append enqueues song at the end. The selection does not change, even when
// the queue was empty.
func (q *Queue) Append(song json.RawMessage, addedBy models.Member) (models.QueueItem, error) {
	item, err := q.newItem("append", song, addedBy)
	if err != nil {
		return models.QueueItem{}, err
	}
	q.items = append(q.items, item)
	return item, nil
}

// PlayNow inserts song right after the current item (or at the resume point
// when nothing is selected) and selects it. The relative order of the other
// items is unchanged.
func (q *Queue) PlayNow(song json.RawMessage, addedBy models.Member) (models.QueueItem, error) {
	item, err := q.newItem("play_now", song, addedBy)
	if err != nil {
		return models.QueueItem{}, err
	}
	pos := q.nextIndex()
	q.items = append(q.items, models.QueueItem{})
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = item
	q.current = pos
	return item, nil
}

// RemoveResult describes what a removal did to the selection.
type RemoveResult struct {
	Removed    models.QueueItem
	WasCurrent bool
	// Next is the item now current after removing the current one.
	Next    models.QueueItem
	HasNext bool
}

// Remove deletes the item with id. Removing the current item selects the one
// that followed it, or clears the selection when none remains.
func (q *Queue) Remove(id string) (RemoveResult, error) {
	idx := q.indexOf(id)
	if idx < 0 {
		return RemoveResult{}, opError("remove", ErrItemNotFound)
	}

	res := RemoveResult{Removed: q.items[idx]}
	q.items = append(q.items[:idx], q.items[idx+1:]...)

	switch {
	case q.current < 0:
		if idx < q.resume {
			q.resume--
		}
	case idx < q.current:
		q.current--
	case idx == q.current:
		res.WasCurrent = true
		if idx < len(q.items) {
			res.Next = q.items[idx]
			res.HasNext = true
		} else {
			q.end()
		}
	}
	return res, nil
}

// Reorder moves the item at from to position to. The current item stays
// current across the move.
func (q *Queue) Reorder(from, to int) error {
	n := len(q.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return opError("reorder", ErrInvalidIndex)
	}
	if from == to {
		return nil
	}

	item := q.items[from]
	q.items = append(q.items[:from], q.items[from+1:]...)
	q.items = append(q.items, models.QueueItem{})
	copy(q.items[to+1:], q.items[to:])
	q.items[to] = item

	switch {
	case q.current < 0:
		if from < q.resume && to >= q.resume {
			q.resume--
		} else if from >= q.resume && to < q.resume {
			q.resume++
		}
	case q.current == from:
		q.current = to
	case from < q.current && to >= q.current:
		q.current--
	case from > q.current && to <= q.current:
		q.current++
	}
	return nil
}

// Skip advances to the next item. When there is none the selection is
// cleared and ok is false (queue ended); the queue never wraps. After the
// end, Skip picks up with the first item added since.
func (q *Queue) Skip() (next models.QueueItem, ok bool) {
	if i := q.nextIndex(); i < len(q.items) {
		q.current = i
		return q.items[i], true
	}
	q.end()
	return models.QueueItem{}, false
}

// AdvanceOnSongEnded advances only if id is still the current item. A stale
// report is ignored and advanced is false.
func (q *Queue) AdvanceOnSongEnded(id string) (next models.QueueItem, ok bool, advanced bool) {
	cur, has := q.Current()
	if !has || cur.ID != id {
		return models.QueueItem{}, false, false
	}
	next, ok = q.Skip()
	return next, ok, true
}

func (q *Queue) nextIndex() int {
	if q.current >= 0 {
		return q.current + 1
	}
	return q.resume
}

// end clears the selection; everything queued so far counts as played.
func (q *Queue) end() {
	q.current = -1
	q.resume = len(q.items)
}

func (q *Queue) indexOf(id string) int {
	for i, it := range q.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) newItem(op string, song json.RawMessage, addedBy models.Member) (models.QueueItem, error) {
	trimmed := bytes.TrimSpace(song)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || !json.Valid(trimmed) {
		return models.QueueItem{}, opError(op, ErrInvalidSong)
	}
	return models.QueueItem{
		ID:      q.newID(),
		Song:    append(json.RawMessage(nil), trimmed...),
		AddedBy: addedBy,
		AddedAt: clock.NowMillis(q.clock),
	}, nil
}
