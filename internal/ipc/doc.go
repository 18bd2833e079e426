// Package ipc speaks the local Discord IPC protocol.
//
// A StreamManager discovers the client's discord-ipc-N socket, owns the single
// connection to it, and moves length-framed JSON messages across it. Every
// frame is an 8-byte little-endian header (opcode, payload length) followed by
// the JSON payload. Incoming payloads decode into a Message that is either a
// Response or a remote Error.
//
// The package is deliberately synchronous and unlocked: callers pair each Write
// with one Read and serialise access themselves.
package ipc
