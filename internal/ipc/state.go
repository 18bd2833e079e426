package ipc

// State tracks where a StreamManager is in its connection lifecycle.
type State int

const (
	// Disconnected is the initial and terminal state.
	Disconnected State = iota
	// Pending means endpoint discovery is in progress or failed.
	Pending
	// Connected means a transport handle is open.
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Pending:
		return "pending"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}
