// Package registry is the directory of live listening groups.
//
// Each group is a single-writer actor guarded by its own mutex; operations on
// different groups never contend beyond the short directory lookup. A group is
// deleted the moment its last member leaves or disconnects.
package registry

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"sync-service/internal/clock"
	"sync-service/internal/models"
	"sync-service/internal/playback"
	"sync-service/internal/queue"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrNotMember     = errors.New("user is not a member of the group")
	ErrNotCreator    = errors.New("only the group creator may do this")
)

const maxCodeAttempts = 8

// CodeIssuer allocates group ids and their shareable join artifact.
type CodeIssuer interface {
	NewCode() (string, error)
	Artifact(code string) (string, error)
}

// LeaveResult describes a membership removal.
type LeaveResult struct {
	Member    models.Member
	WasMember bool
	Remaining []models.Member
	Disbanded bool
}

// Departure is one group a disconnected user was removed from.
type Departure struct {
	GroupID string
	LeaveResult
}

// Registry owns every live group. It is created at process start and passed
// explicitly to whatever needs it.
type Registry struct {
	mu          sync.RWMutex
	groups      map[string]*Group
	memberships map[string]map[string]struct{} // user id -> group ids

	clock     clock.Clock
	lookahead time.Duration
	codes     CodeIssuer
}

// New constructs an empty Registry.
func New(codes CodeIssuer, c clock.Clock, lookahead time.Duration) *Registry {
	if c == nil {
		c = clock.System{}
	}
	return &Registry{
		groups:      make(map[string]*Group),
		memberships: make(map[string]map[string]struct{}),
		clock:       c,
		lookahead:   lookahead,
		codes:       codes,
	}
}

// Count returns the number of live groups.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// GroupsOf lists the groups userID currently belongs to.
func (r *Registry) GroupsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.memberships[userID]))
	for id := range r.memberships[userID] {
		out = append(out, id)
	}
	return out
}

// Create allocates a new group with creator as its only member and runs then
// under the new group's lock. On failure nothing is registered.
func (r *Registry) Create(name string, creator models.Member, then func(g *Group)) (models.Group, error) {
	id, qr, err := r.allocate()
	if err != nil {
		return models.Group{}, err
	}

	q := queue.New(r.clock)
	g := &Group{
		id:        id,
		name:      name,
		createdBy: creator.UserID,
		createdAt: clock.NowMillis(r.clock),
		qrCode:    qr,
		members:   []models.Member{creator},
		playback:  playback.New(q, r.clock, r.lookahead),
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r.mu.Lock()
	if _, taken := r.groups[id]; taken {
		r.mu.Unlock()
		return models.Group{}, fmt.Errorf("allocate group id: %s already in use", id)
	}
	r.groups[id] = g
	r.indexLocked(creator.UserID, id)
	r.mu.Unlock()

	log.Printf("group created group_id=%s name=%q created_by=%s", id, name, creator.UserID)
	if then != nil {
		then(g)
	}
	snap := g.Snapshot()
	snap.QRCode = qr
	return snap, nil
}

// Join adds user to the group (idempotent) and runs then under the group lock.
// added is false when the user was already a member.
func (r *Registry) Join(groupID string, user models.Member, then func(g *Group, added bool)) (models.Group, bool, error) {
	var (
		snap  models.Group
		added bool
	)
	err := r.WithGroup(groupID, func(g *Group) error {
		added = g.addMember(user)
		if added {
			r.index(user.UserID, groupID)
		}
		if then != nil {
			then(g, added)
		}
		snap = g.Snapshot()
		return nil
	})
	return snap, added, err
}

// Leave removes userID from the group and deletes the group once empty.
// Leaving a group one is not part of is a no-op.
func (r *Registry) Leave(groupID, userID string, then func(g *Group, res LeaveResult)) (LeaveResult, error) {
	var res LeaveResult
	err := r.WithGroup(groupID, func(g *Group) error {
		res = r.removeLocked(g, userID)
		if then != nil {
			then(g, res)
		}
		return nil
	})
	return res, err
}

// Disconnect removes userID from every group it belongs to.
func (r *Registry) Disconnect(userID string, then func(g *Group, res LeaveResult)) []Departure {
	var out []Departure
	for _, groupID := range r.GroupsOf(userID) {
		res, err := r.Leave(groupID, userID, then)
		if err != nil || !res.WasMember {
			continue
		}
		out = append(out, Departure{GroupID: groupID, LeaveResult: res})
	}
	return out
}

// Disband deletes a group on its creator's request. then receives the members
// as they were just before deletion.
func (r *Registry) Disband(groupID, userID string, then func(g *Group, members []models.Member)) error {
	return r.WithGroup(groupID, func(g *Group) error {
		if g.createdBy != userID {
			return ErrNotCreator
		}
		if !g.HasMember(userID) {
			return ErrNotMember
		}
		members := g.Members()
		for _, m := range members {
			r.unindex(m.UserID, g.id)
		}
		g.members = nil
		r.closeLocked(g)
		if then != nil {
			then(g, members)
		}
		return nil
	})
}

// WithGroup runs fn while holding the group's lock. It fails with
// ErrGroupNotFound if the group does not exist or was deleted meanwhile.
func (r *Registry) WithGroup(groupID string, fn func(g *Group) error) error {
	r.mu.RLock()
	g, ok := r.groups[groupID]
	r.mu.RUnlock()
	if !ok {
		return ErrGroupNotFound
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGroupNotFound
	}
	return fn(g)
}

// Snapshot returns the current snapshot of a group.
func (r *Registry) Snapshot(groupID string) (models.Group, error) {
	var snap models.Group
	err := r.WithGroup(groupID, func(g *Group) error {
		snap = g.Snapshot()
		return nil
	})
	return snap, err
}

func (r *Registry) removeLocked(g *Group, userID string) LeaveResult {
	member, _ := g.Member(userID)
	if !g.removeMember(userID) {
		return LeaveResult{Remaining: g.Members()}
	}
	r.unindex(userID, g.id)

	res := LeaveResult{Member: member, WasMember: true, Remaining: g.Members()}
	if len(g.members) == 0 {
		r.closeLocked(g)
		res.Disbanded = true
	}
	return res
}

func (r *Registry) closeLocked(g *Group) {
	g.closed = true
	r.mu.Lock()
	delete(r.groups, g.id)
	r.mu.Unlock()
	log.Printf("group deleted group_id=%s", g.id)
}

func (r *Registry) allocate() (string, string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		id, err := r.codes.NewCode()
		if err != nil {
			return "", "", err
		}
		r.mu.RLock()
		_, taken := r.groups[id]
		r.mu.RUnlock()
		if taken {
			continue
		}
		qr, err := r.codes.Artifact(id)
		if err != nil {
			return "", "", err
		}
		return id, qr, nil
	}
	return "", "", fmt.Errorf("allocate group id: no free code after %d attempts", maxCodeAttempts)
}

func (r *Registry) index(userID, groupID string) {
	r.mu.Lock()
	r.indexLocked(userID, groupID)
	r.mu.Unlock()
}

func (r *Registry) indexLocked(userID, groupID string) {
	set, ok := r.memberships[userID]
	if !ok {
		set = make(map[string]struct{})
		r.memberships[userID] = set
	}
	set[groupID] = struct{}{}
}

func (r *Registry) unindex(userID, groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.memberships[userID]; ok {
		delete(set, groupID)
		if len(set) == 0 {
			delete(r.memberships, userID)
		}
	}
}
