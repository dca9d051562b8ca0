package observability

const connEventType = "ws_events"

// EventEnvelope is the analytics record of one sync socket lifecycle event.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   ConnPayload `json:"payload"`
}

type ConnPayload struct {
	WS       ConnDetails  `json:"ws"`
	Identity ConnIdentity `json:"identity"`
}

type ConnDetails struct {
	Kind       string `json:"kind"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMs int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

type ConnIdentity struct {
	UserID   string `json:"user_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// NewConnEvent wraps a lifecycle event; the name doubles as payload.ws.event.
func NewConnEvent(name string, details ConnDetails, who ConnIdentity) EventEnvelope {
	details.Event = name
	return EventEnvelope{
		EventType: connEventType,
		EventName: name,
		Payload:   ConnPayload{WS: details, Identity: who},
	}
}

// BuildHeaders carries correlation ids as AMQP headers. connID lets consumers
// join the connect and disconnect records of one socket.
func BuildHeaders(requestID, traceID, connID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	if connID != "" {
		headers["x-conn-id"] = connID
	}
	return headers
}
