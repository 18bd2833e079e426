// Package presence drives the Rich Presence protocol on top of an
// ipc.StreamManager: it performs the handshake and pushes SET_ACTIVITY
// commands built from the current configuration snapshot.
package presence
