package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"sync-service/internal/observability"
)

const (
	wsKind       = "sync"
	wsRoutingKey = "ws_events.sync"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// publishWSEvent counts and publishes a connection lifecycle event.
func publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	observability.IncWSEvent(wsKind, event)

	var duration int64
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	envelope := observability.NewConnEvent(event, observability.ConnDetails{
		Kind:       wsKind,
		ConnID:     info.ConnID,
		DurationMs: duration,
		Reason:     reason,
	}, observability.ConnIdentity{
		UserID:   info.UserID,
		DeviceID: info.DeviceID,
		IP:       info.IP,
	})
	_ = observability.PublishEvent(ctx, wsRoutingKey, envelope, observability.BuildHeaders(info.RequestID, info.TraceID, info.ConnID))
}
