package ipc

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by operations that need an open connection.
var ErrNotConnected = errors.New("ipc: not connected")

// DiscoveryError reports that no candidate socket could be found.
type DiscoveryError struct {
	Dir     string
	Pattern string
	Err     error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discover ipc socket in %s: %v", e.Dir, e.Err)
	}
	return fmt.Sprintf("no ipc socket matching %s in %s; is Discord running?", e.Pattern, e.Dir)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ConnectionError reports that every discovered socket refused the connection.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to ipc socket: all %d candidates failed: %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a frame or payload that does not follow the protocol.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ipc protocol: %s: %v", e.Reason, e.Err)
	}
	return "ipc protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// RemoteError carries an error payload returned by the peer.
type RemoteError struct {
	Code    uint32
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ipc remote error %d: %s", e.Code, e.Message)
}
