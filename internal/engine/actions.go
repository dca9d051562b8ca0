package engine

import (
	"sync-service/internal/clock"
	"sync-service/internal/models"
	"sync-service/internal/playback"
	"sync-service/internal/protocol"
	"sync-service/internal/registry"
)

// addedBy falls back to the sender's member record when the client left
// addedBy empty.
func addedBy(g *registry.Group, o Origin, who protocol.Identity) models.Member {
	if who.UserID != "" {
		return who.Member()
	}
	m, _ := g.Member(o.UserID)
	return m
}

func (e *Engine) addToQueue(o Origin, c *protocol.AddToQueue) error {
	return e.withMember(o, c.GroupID, func(g *registry.Group) error {
		item, err := g.Playback().Queue().Append(c.Song, addedBy(g, o, c.AddedBy))
		if err != nil {
			return err
		}
		e.broadcastQueue(g, protocol.QueueActionAdd, &item)
		return nil
	})
}

func (e *Engine) playNow(o Origin, c *protocol.PlayNow) error {
	return e.withMember(o, c.GroupID, func(g *registry.Group) error {
		track, err := g.Playback().PlayNow(c.Song, addedBy(g, o, c.AddedBy))
		if err != nil {
			return err
		}
		e.broadcastQueue(g, protocol.QueueActionPlayNow, &track.QueueItem)
		e.applyOutcome(g, playback.Outcome{Kind: playback.TrackChanged, Track: track}, protocol.QueueActionPlayNow)
		return nil
	})
}

func (e *Engine) removeFromQueue(o Origin, c *protocol.RemoveFromQueue) error {
	return e.withMember(o, c.GroupID, func(g *registry.Group) error {
		res, out, err := g.Playback().Remove(c.QueueItemID)
		if err != nil {
			return err
		}
		e.broadcastQueue(g, protocol.QueueActionRemove, &res.Removed)
		e.applyOutcome(g, out, protocol.QueueActionRemove)
		return nil
	})
}

func (e *Engine) reorderQueue(o Origin, c *protocol.ReorderQueue) error {
	return e.withMember(o, c.GroupID, func(g *registry.Group) error {
		if err := g.Playback().Queue().Reorder(c.FromIndex, c.ToIndex); err != nil {
			return err
		}
		e.broadcastQueue(g, protocol.QueueActionReorder, nil)
		return nil
	})
}

func (e *Engine) skipSong(o Origin, c *protocol.SkipSong) error {
	return e.withMember(o, c.GroupID, func(g *registry.Group) error {
		out := g.Playback().Skip()
		var item *models.QueueItem
		if out.Kind == playback.TrackChanged {
			item = &out.Track.QueueItem
		}
		e.broadcastQueue(g, protocol.QueueActionSkip, item)
		e.applyOutcome(g, out, protocol.QueueActionSkip)
		return nil
	})
}

// songEnded advances only when the reported item is still current. Every
// member reports the end of the same track; all but the first are dropped
// here without a reply.
func (e *Engine) songEnded(o Origin, c *protocol.SongEnded) error {
	return e.withMember(o, c.GroupID, func(g *registry.Group) error {
		out := g.Playback().SongEnded(c.SongID)
		if out.Kind == playback.NoChange {
			return nil
		}
		var item *models.QueueItem
		if out.Kind == playback.TrackChanged {
			item = &out.Track.QueueItem
		}
		e.broadcastQueue(g, protocol.QueueActionAdvance, item)
		e.applyOutcome(g, out, protocol.QueueActionAdvance)
		return nil
	})
}

func (e *Engine) togglePlayback(o Origin, c *protocol.PlaybackToggle) error {
	return e.withMember(o, c.GroupID, func(g *registry.Group) error {
		u, err := g.Playback().Toggle(c.IsPlaying, c.CurrentTime, c.QueueItemID)
		if err != nil {
			return err
		}
		e.transport.Broadcast(g.ID(), protocol.PlaybackUpdate(u), "")
		return nil
	})
}

func (e *Engine) seek(o Origin, c *protocol.Seek) error {
	return e.withMember(o, c.GroupID, func(g *registry.Group) error {
		u, err := g.Playback().Seek(c.CurrentTime, c.QueueItemID)
		if err != nil {
			return err
		}
		e.transport.Broadcast(g.ID(), protocol.PlaybackUpdate(u), "")
		return nil
	})
}

func (e *Engine) requestSync(o Origin, c *protocol.RequestSync) error {
	return e.registry.WithGroup(c.GroupID, func(g *registry.Group) error {
		e.transport.Reply(o.ConnID, protocol.SyncState(g.Playback().Snapshot()))
		return nil
	})
}

func (e *Engine) relayChat(o Origin, c *protocol.ChatMessage) error {
	return e.withMember(o, c.GroupID, func(g *registry.Group) error {
		sender := c.SenderID
		if sender == "" {
			sender = o.UserID
		}
		e.transport.Broadcast(g.ID(), protocol.NewMessage(models.ChatMessage{
			GroupID:   g.ID(),
			SenderID:  sender,
			Message:   c.Message,
			Timestamp: clock.NowMillis(e.clock),
			Extra:     c.Extra,
		}), "")
		return nil
	})
}
