package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"sync-service/internal/engine"
	"sync-service/internal/observability"
	"sync-service/internal/protocol"
)

// Dispatcher executes decoded commands on behalf of a connection.
type Dispatcher interface {
	Handle(ctx context.Context, o engine.Origin, cmd protocol.Command) error
	Disconnect(ctx context.Context, userID string)
}

// Handler upgrades /ws requests and pumps frames between the socket and the
// dispatcher.
type Handler struct {
	hub      *Hub
	dispatch Dispatcher
	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler. allowedOrigins of ["*"] or none accepts any
// origin.
func NewHandler(hub *Hub, dispatch Dispatcher, allowedOrigins []string) *Handler {
	return &Handler{
		hub:      hub,
		dispatch: dispatch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Handle upgrades the connection and serves it until it closes.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("sync-service/ws").Start(c.Request.Context(), "ws.handshake")
	c.Request = c.Request.WithContext(ctx)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.End()
		return
	}
	traceID := span.SpanContext().TraceID().String()
	hs := observability.HandshakeFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    hs.DeviceID,
		IP:          hs.IP,
		RequestID:   hs.RequestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	span.End()

	client := h.hub.Register(conn, info)
	observability.IncWSActive(wsKind)
	publishWSEvent(ctx, "ws_connect", info, "")

	go client.writePump()
	go h.serve(client)
}

func (h *Handler) serve(client *Client) {
	ctx := context.Background()
	closeReason := client.readPump(func(raw []byte) {
		h.handleFrame(ctx, client, raw)
	})

	userID, active := h.hub.Unregister(client)
	if active {
		h.dispatch.Disconnect(ctx, userID)
	} else if client.Superseded() {
		closeReason = "superseded"
	}

	observability.DecWSActive(wsKind)
	info := client.info
	info.UserID = userID
	publishWSEvent(ctx, "ws_disconnect", info, closeReason)
}

func (h *Handler) handleFrame(ctx context.Context, client *Client, raw []byte) {
	cmd, err := protocol.Decode(raw)
	if err != nil {
		log.Printf("websocket frame rejected conn_id=%s: %v", client.ID(), err)
		h.hub.Reply(client.ID(), protocol.Error(err))
		return
	}
	origin := engine.Origin{
		ConnID:    client.ID(),
		UserID:    client.UserID(),
		RequestID: client.info.RequestID,
	}
	_ = h.dispatch.Handle(ctx, origin, cmd)
}
