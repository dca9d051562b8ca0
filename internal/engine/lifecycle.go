package engine

import (
	"context"
	"fmt"

	"sync-service/internal/models"
	"sync-service/internal/observability"
	"sync-service/internal/protocol"
	"sync-service/internal/registry"
)

func (e *Engine) createGroup(ctx context.Context, o Origin, c *protocol.CreateGroup) error {
	if err := checkIdentity(o, c.UserID); err != nil {
		return err
	}
	creator := c.Member()
	snap, err := e.registry.Create(c.Name, creator, func(g *registry.Group) {
		e.transport.Bind(o.ConnID, creator.UserID)
		e.transport.Subscribe(g.ID(), creator.UserID)
		snap := g.Snapshot()
		snap.QRCode = g.QRCode()
		e.transport.Reply(o.ConnID, protocol.GroupCreated(snap))
	})
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	observability.SetActiveGroups(e.registry.Count())
	e.auditGroup(ctx, "group_created", snap.ID, creator.UserID, o.RequestID, fmt.Sprintf("group %q created", snap.Name))
	return nil
}

// joinGroup serves both join-group and rejoin-group. A rejoin of a user who
// is still listed only resubscribes and resends the snapshot; the other
// members hear about it only if the user was actually (re)added.
func (e *Engine) joinGroup(ctx context.Context, o Origin, groupID string, who protocol.Identity, rejoin bool) error {
	if err := checkIdentity(o, who.UserID); err != nil {
		return err
	}
	user := who.Member()
	_, added, err := e.registry.Join(groupID, user, func(g *registry.Group, added bool) {
		e.transport.Bind(o.ConnID, user.UserID)
		e.transport.Subscribe(g.ID(), user.UserID)
		snap := g.Snapshot()
		if rejoin {
			e.transport.Reply(o.ConnID, protocol.GroupRejoined(snap))
		} else {
			e.transport.Reply(o.ConnID, protocol.GroupJoined(snap))
		}
		if added {
			e.transport.Broadcast(g.ID(), protocol.MemberJoined(g.ID(), user, snap.Members), user.UserID)
		}
	})
	if err != nil {
		return err
	}
	if added {
		event := "member_joined"
		if rejoin {
			event = "member_rejoined"
		}
		e.auditGroup(ctx, event, groupID, user.UserID, o.RequestID, "member joined")
	}
	return nil
}

// leaveGroup removes the connection's own user. A payload naming anyone else
// is rejected.
func (e *Engine) leaveGroup(ctx context.Context, o Origin, c *protocol.LeaveGroup) error {
	if c.UserID != o.UserID {
		return registry.ErrNotMember
	}
	res, err := e.registry.Leave(c.GroupID, o.UserID, func(g *registry.Group, res registry.LeaveResult) {
		e.departed(g, o.UserID, res)
	})
	if err != nil {
		return err
	}
	if !res.WasMember {
		return nil
	}
	e.auditGroup(ctx, "member_left", c.GroupID, o.UserID, o.RequestID, "member left")
	if res.Disbanded {
		e.auditGroup(ctx, "group_deleted", c.GroupID, "", o.RequestID, "last member left")
		observability.SetActiveGroups(e.registry.Count())
	}
	return nil
}

func (e *Engine) disbandGroup(ctx context.Context, o Origin, c *protocol.DisbandGroup) error {
	if c.UserID != o.UserID {
		return registry.ErrNotCreator
	}
	err := e.registry.Disband(c.GroupID, o.UserID, func(g *registry.Group, members []models.Member) {
		e.transport.Broadcast(g.ID(), protocol.GroupDisbanded(g.ID()), o.UserID)
		for _, m := range members {
			e.transport.Unsubscribe(g.ID(), m.UserID)
		}
	})
	if err != nil {
		return err
	}
	observability.SetActiveGroups(e.registry.Count())
	e.auditGroup(ctx, "group_disbanded", c.GroupID, o.UserID, o.RequestID, "group disbanded by creator")
	return nil
}

// checkIdentity allows an unbound connection to claim any user and a bound
// one only its own.
func checkIdentity(o Origin, userID string) error {
	if o.UserID != "" && o.UserID != userID {
		return ErrIdentityMismatch
	}
	return nil
}
