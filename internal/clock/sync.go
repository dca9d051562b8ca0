package clock

// SyncReply answers a time-sync request: the client's send time echoed back
// plus the server reading at the moment of handling.
type SyncReply struct {
	ClientTime int64 `json:"clientTime"`
	ServerTime int64 `json:"serverTime"`
}

// Respond builds the reply for a request carrying clientTime (t0).
func Respond(c Clock, clientTime int64) SyncReply {
	return SyncReply{ClientTime: clientTime, ServerTime: NowMillis(c)}
}

// Sample is one offset estimate computed on the client.
type Sample struct {
	Offset int64 // server - client, millis
	RTT    int64 // round trip, millis
}

// Estimate computes the offset from a single exchange: t0 client send time,
// t1 server reading, t2 client receive time. One-way delay is taken as rtt/2
// with no outlier filtering.
func Estimate(t0, t1, t2 int64) Sample {
	rtt := t2 - t0
	if rtt < 0 {
		rtt = 0
	}
	return Sample{
		Offset: (t1 + rtt/2) - t2,
		RTT:    rtt,
	}
}

// SharedNow translates a local reading into the shared (server) clock.
func SharedNow(localMillis, offset int64) int64 {
	return localMillis + offset
}

// Delay is how long a client waits before executing an action scheduled at
// scheduledTime on the shared clock. Never negative.
func Delay(scheduledTime, sharedNow int64) int64 {
	d := scheduledTime - sharedNow
	if d < 0 {
		return 0
	}
	return d
}
