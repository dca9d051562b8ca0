// Package engine routes decoded client commands to the owning group and fans
// the resulting events out through a Transport.
//
// Every broadcast is emitted while the group's lock is held, so members see a
// group's events in the order the group produced them.
package engine

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"sync-service/internal/clock"
	"sync-service/internal/models"
	"sync-service/internal/observability"
	"sync-service/internal/playback"
	"sync-service/internal/protocol"
	"sync-service/internal/registry"
)

// Transport delivers server events to connections, users and group rooms.
type Transport interface {
	// Reply sends ev to a single connection.
	Reply(connID string, ev protocol.Event)
	// Bind associates a connection with the user it speaks for.
	Bind(connID, userID string)
	Subscribe(groupID, userID string)
	Unsubscribe(groupID, userID string)
	// Broadcast sends ev to every subscriber of groupID except exceptUserID.
	Broadcast(groupID string, ev protocol.Event, exceptUserID string)
}

// HistoryRecorder accepts track starts for the play history. Record must not
// block.
type HistoryRecorder interface {
	Record(rec models.PlayRecord)
}

// Auditor receives group lifecycle events.
type Auditor interface {
	EmitGroup(ctx context.Context, event, groupID, userID, requestID, text string)
}

// Origin identifies where a command came from.
type Origin struct {
	ConnID    string
	UserID    string
	RequestID string
}

type Engine struct {
	registry  *registry.Registry
	transport Transport
	clock     clock.Clock
	history   HistoryRecorder
	audit     Auditor
}

// New wires an engine. history and audit may be nil.
func New(reg *registry.Registry, transport Transport, c clock.Clock, history HistoryRecorder, audit Auditor) *Engine {
	if c == nil {
		c = clock.System{}
	}
	return &Engine{
		registry:  reg,
		transport: transport,
		clock:     c,
		history:   history,
		audit:     audit,
	}
}

// Handle executes one client command. Rejections are reported to the
// originating connection only and returned for logging.
func (e *Engine) Handle(ctx context.Context, o Origin, cmd protocol.Command) error {
	name := cmd.EventName()
	ctx, span := otel.Tracer("sync-service/engine").Start(ctx, "engine."+name)
	defer span.End()
	span.SetAttributes(attribute.String("sync.event", name), attribute.String("sync.user_id", o.UserID))
	if gc, ok := cmd.(protocol.GroupCommand); ok {
		span.SetAttributes(attribute.String("sync.group_id", gc.Group()))
	}

	err := e.dispatch(ctx, o, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.IncCommand(name, "rejected")
		log.Printf("command rejected event=%s group_id=%s user_id=%s conn_id=%s err=%v", name, groupOf(cmd), o.UserID, o.ConnID, err)
		e.transport.Reply(o.ConnID, rejection(cmd, err))
		return err
	}
	observability.IncCommand(name, "ok")
	return nil
}

// Disconnect removes userID from every group after its connection dropped.
func (e *Engine) Disconnect(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	departures := e.registry.Disconnect(userID, func(g *registry.Group, res registry.LeaveResult) {
		e.departed(g, userID, res)
	})
	for _, d := range departures {
		log.Printf("member disconnected group_id=%s user_id=%s remaining=%d", d.GroupID, userID, len(d.Remaining))
		e.auditGroup(ctx, "member_disconnected", d.GroupID, userID, "", "member disconnected")
		if d.Disbanded {
			e.auditGroup(ctx, "group_deleted", d.GroupID, "", "", "last member left")
		}
	}
	observability.SetActiveGroups(e.registry.Count())
}

// SyncState returns the pull snapshot of a group.
func (e *Engine) SyncState(groupID string) (models.SyncState, error) {
	var st models.SyncState
	err := e.registry.WithGroup(groupID, func(g *registry.Group) error {
		st = g.Playback().Snapshot()
		return nil
	})
	return st, err
}

func (e *Engine) dispatch(ctx context.Context, o Origin, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case *protocol.CreateGroup:
		return e.createGroup(ctx, o, c)
	case *protocol.JoinGroup:
		return e.joinGroup(ctx, o, c.GroupID, c.Identity, false)
	case *protocol.RejoinGroup:
		return e.joinGroup(ctx, o, c.GroupID, c.Identity, true)
	case *protocol.LeaveGroup:
		return e.leaveGroup(ctx, o, c)
	case *protocol.DisbandGroup:
		return e.disbandGroup(ctx, o, c)
	case *protocol.TimeSyncRequest:
		e.transport.Reply(o.ConnID, protocol.TimeSyncResponse(clock.Respond(e.clock, c.ClientTime)))
		return nil
	case *protocol.AddToQueue:
		return e.addToQueue(o, c)
	case *protocol.PlayNow:
		return e.playNow(o, c)
	case *protocol.RemoveFromQueue:
		return e.removeFromQueue(o, c)
	case *protocol.ReorderQueue:
		return e.reorderQueue(o, c)
	case *protocol.SkipSong:
		return e.skipSong(o, c)
	case *protocol.SongEnded:
		return e.songEnded(o, c)
	case *protocol.PlaybackToggle:
		return e.togglePlayback(o, c)
	case *protocol.Seek:
		return e.seek(o, c)
	case *protocol.RequestSync:
		return e.requestSync(o, c)
	case *protocol.ChatMessage:
		return e.relayChat(o, c)
	default:
		return protocol.ErrUnknownEvent
	}
}

// withMember runs fn under the group lock after checking that the origin's
// user belongs to the group.
func (e *Engine) withMember(o Origin, groupID string, fn func(g *registry.Group) error) error {
	return e.registry.WithGroup(groupID, func(g *registry.Group) error {
		if o.UserID == "" || !g.HasMember(o.UserID) {
			return registry.ErrNotMember
		}
		return fn(g)
	})
}

func (e *Engine) broadcastQueue(g *registry.Group, action string, item *models.QueueItem) {
	e.transport.Broadcast(g.ID(), protocol.QueueUpdated(g.ID(), g.Playback().Snapshot(), action, item), "")
}

// applyOutcome broadcasts the playback effect of a queue transition.
func (e *Engine) applyOutcome(g *registry.Group, out playback.Outcome, reason string) {
	switch out.Kind {
	case playback.TrackChanged:
		e.transport.Broadcast(g.ID(), protocol.MusicUpdate(out.Track), "")
		e.recordPlay(g.ID(), out.Track, reason)
	case playback.QueueEnded:
		e.transport.Broadcast(g.ID(), protocol.QueueEnded(g.ID(), g.Playback().State()), "")
	}
}

func (e *Engine) recordPlay(groupID string, t playback.TrackChange, reason string) {
	if e.history == nil {
		return
	}
	e.history.Record(models.PlayRecord{
		GroupID:     groupID,
		QueueItemID: t.QueueItem.ID,
		Song:        t.Song,
		AddedBy:     t.QueueItem.AddedBy.UserID,
		Reason:      reason,
		StartedAt:   time.UnixMilli(t.ScheduledTime).UTC(),
	})
}

func (e *Engine) departed(g *registry.Group, userID string, res registry.LeaveResult) {
	e.transport.Unsubscribe(g.ID(), userID)
	if !res.WasMember || res.Disbanded {
		return
	}
	e.transport.Broadcast(g.ID(), protocol.MemberLeft(g.ID(), userID, res.Remaining), userID)
}

func (e *Engine) auditGroup(ctx context.Context, event, groupID, userID, requestID, text string) {
	if e.audit == nil {
		return
	}
	e.audit.EmitGroup(ctx, event, groupID, userID, requestID, text)
}

func groupOf(cmd protocol.Command) string {
	if gc, ok := cmd.(protocol.GroupCommand); ok {
		return gc.Group()
	}
	return ""
}
