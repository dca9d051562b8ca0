package client

import (
	"sync"
	"time"
)

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func systemAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Scheduler holds at most one pending action per group. Scheduling a new
// action replaces (cancels) the pending one.
type Scheduler struct {
	after AfterFunc

	mu      sync.Mutex
	pending map[string]*pendingAction
	seq     uint64
}

type pendingAction struct {
	seq   uint64
	timer Timer
}

func NewScheduler(after AfterFunc) *Scheduler {
	if after == nil {
		after = systemAfterFunc
	}
	return &Scheduler{after: after, pending: make(map[string]*pendingAction)}
}

// Schedule runs fn after delay unless another action for groupID is
// scheduled or the group is cancelled first.
func (s *Scheduler) Schedule(groupID string, delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.pending[groupID]; ok {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	action := &pendingAction{seq: seq}
	s.pending[groupID] = action
	action.timer = s.after(delay, func() {
		if !s.claim(groupID, seq) {
			return
		}
		fn()
	})
}

// Cancel drops the pending action of groupID, if any.
func (s *Scheduler) Cancel(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.pending[groupID]; ok {
		prev.timer.Stop()
		delete(s.pending, groupID)
	}
}

// Pending reports whether an action for groupID is armed.
func (s *Scheduler) Pending(groupID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[groupID]
	return ok
}

// claim removes the action if it is still the latest one for the group. A
// timer that fired while being replaced loses here.
func (s *Scheduler) claim(groupID string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.pending[groupID]
	if !ok || cur.seq != seq {
		return false
	}
	delete(s.pending, groupID)
	return true
}
