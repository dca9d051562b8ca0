package registry

import (
	"sync"

	"sync-service/internal/models"
	"sync-service/internal/playback"
)

// Group is the in-memory state of one listening group. Its fields are only
// reachable through callbacks that run while the group lock is held.
type Group struct {
	mu sync.Mutex

	id        string
	name      string
	createdBy string
	createdAt int64
	qrCode    string

	members  []models.Member
	playback *playback.Coordinator
	closed   bool
}

func (g *Group) ID() string { return g.id }
func (g *Group) Name() string { return g.name }
func (g *Group) CreatedBy() string { return g.createdBy }
func (g *Group) QRCode() string { return g.qrCode }

// Playback returns the group's coordinator.
func (g *Group) Playback() *playback.Coordinator { return g.playback }

// Members returns the members in join order.
func (g *Group) Members() []models.Member {
	out := make([]models.Member, len(g.members))
	copy(out, g.members)
	return out
}

// Member looks up a member by user id.
func (g *Group) Member(userID string) (models.Member, bool) {
	for _, m := range g.members {
		if m.UserID == userID {
			return m, true
		}
	}
	return models.Member{}, false
}

// HasMember reports membership by user id.
func (g *Group) HasMember(userID string) bool {
	_, ok := g.Member(userID)
	return ok
}

// Snapshot is the full state sent to a (re)joining member.
func (g *Group) Snapshot() models.Group {
	st := g.playback.Snapshot()
	return models.Group{
		ID:                g.id,
		Name:              g.name,
		CreatedBy:         g.createdBy,
		CreatedAt:         g.createdAt,
		Members:           g.Members(),
		PlaybackState:     st.PlaybackState,
		Queue:             st.Queue,
		CurrentQueueIndex: st.CurrentQueueIndex,
	}
}

func (g *Group) addMember(m models.Member) bool {
	for i, existing := range g.members {
		if existing.UserID == m.UserID {
			// display metadata may have changed since the first join
			g.members[i] = m
			return false
		}
	}
	g.members = append(g.members, m)
	return true
}

func (g *Group) removeMember(userID string) bool {
	for i, m := range g.members {
		if m.UserID == userID {
			g.members = append(g.members[:i], g.members[i+1:]...)
			return true
		}
	}
	return false
}
