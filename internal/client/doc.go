// Package client implements the member side of the sync protocol on top of a
// websocket connection. Playback follows scheduled server broadcasts; a
// periodic snapshot pull snaps the local player back when it drifts.
package client
