package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"dstatus/internal/logging"
)

const (
	// DefaultSocketPrefix is the socket name Discord listens on, minus the
	// "-N" suffix.
	DefaultSocketPrefix = "discord-ipc"
	// DefaultDialTimeout bounds each connection attempt.
	DefaultDialTimeout = 2 * time.Second
)

// Frame directions reported to an Observer.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// Observer receives connection and traffic events. Implementations must not
// block.
type Observer interface {
	OnStateChange(state State)
	OnDial(path string, err error)
	OnFrame(direction string, opcode uint32, size int)
}

type nopObserver struct{}

func (nopObserver) OnStateChange(State)         {}
func (nopObserver) OnDial(string, error)        {}
func (nopObserver) OnFrame(string, uint32, int) {}

// Option customises a StreamManager.
type Option func(*StreamManager)

// WithDir sets the directory scanned for sockets.
func WithDir(dir string) Option {
	return func(m *StreamManager) {
		if dir != "" {
			m.dir = dir
		}
	}
}

// WithSocketPrefix sets the socket name prefix; "discord-ipc" matches
// discord-ipc-0, discord-ipc-1 and so on.
func WithSocketPrefix(prefix string) Option {
	return func(m *StreamManager) {
		if prefix != "" {
			m.prefix = prefix
		}
	}
}

// WithDialTimeout bounds each connection attempt. Zero disables the bound.
func WithDialTimeout(timeout time.Duration) Option {
	return func(m *StreamManager) {
		if timeout >= 0 {
			m.dialTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *StreamManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver registers an observer for state and traffic events.
func WithObserver(observer Observer) Option {
	return func(m *StreamManager) {
		if observer != nil {
			m.observer = observer
		}
	}
}

// StreamManager owns at most one connection to the peer socket. It is not safe
// for concurrent use.
type StreamManager struct {
	dir         string
	prefix      string
	dialTimeout time.Duration
	logger      *slog.Logger
	observer    Observer

	state    State
	conn     net.Conn
	endpoint string
}

// NewStreamManager returns a disconnected manager.
func NewStreamManager(opts ...Option) *StreamManager {
	m := &StreamManager{
		dir:         os.TempDir(),
		prefix:      DefaultSocketPrefix,
		dialTimeout: DefaultDialTimeout,
		logger:      logging.NewNop(),
		observer:    nopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "ipc")
	return m
}

// State returns the current connection state.
func (m *StreamManager) State() State { return m.state }

// Connected reports whether a connection is open.
func (m *StreamManager) Connected() bool { return m.conn != nil }

// Endpoint returns the socket path of the open connection, or "".
func (m *StreamManager) Endpoint() string { return m.endpoint }

// Connect discovers candidate sockets and keeps the first one that accepts a
// connection. Candidates are tried in ascending numeric suffix order.
func (m *StreamManager) Connect() error {
	if m.conn != nil {
		return fmt.Errorf("ipc: already connected to %s", m.endpoint)
	}
	m.setState(Pending)

	candidates, err := Discover(m.dir, m.prefix)
	if err != nil {
		m.logger.Error("ipc socket discovery failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_discovery_failed"),
			logging.String(logging.FieldErrorHint, "Start the Discord desktop client and try again"))
		return err
	}
	m.logger.Info("found ipc socket candidates",
		logging.String("dir", m.dir),
		logging.Int("count", len(candidates)))

	var lastErr error
	for _, path := range candidates {
		conn, err := net.DialTimeout("unix", path, m.dialTimeout)
		m.observer.OnDial(path, err)
		if err != nil {
			lastErr = err
			m.logger.Warn("ipc socket refused connection",
				logging.String("socket", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "ipc_dial_failed"),
				logging.String(logging.FieldImpact, "trying the next candidate"),
				logging.String(logging.FieldErrorHint, "Stale sockets are left behind when Discord crashes; they are safe to delete"))
			continue
		}
		m.conn = conn
		m.endpoint = path
		m.setState(Connected)
		m.logger.Info("connected to ipc socket", logging.String("socket", path))
		return nil
	}

	err = &ConnectionError{Attempts: len(candidates), Err: lastErr}
	m.logger.Error("could not connect to any ipc socket",
		logging.Int("attempts", len(candidates)),
		logging.Error(lastErr),
		logging.String(logging.FieldEventType, "ipc_connect_failed"),
		logging.String(logging.FieldErrorHint, "Restart Discord so it recreates its socket"))
	return err
}

// Disconnect shuts down both directions and closes the connection.
func (m *StreamManager) Disconnect() error {
	if m.conn == nil {
		return ErrNotConnected
	}
	conn := m.conn
	if hc, ok := conn.(interface {
		CloseWrite() error
		CloseRead() error
	}); ok {
		if err := hc.CloseWrite(); err != nil {
			m.logger.Debug("close write half failed", logging.Error(err))
		}
		if err := hc.CloseRead(); err != nil {
			m.logger.Debug("close read half failed", logging.Error(err))
		}
	}
	err := conn.Close()
	endpoint := m.endpoint
	m.conn = nil
	m.endpoint = ""
	m.setState(Disconnected)
	if err != nil {
		return fmt.Errorf("close ipc connection: %w", err)
	}
	m.logger.Info("disconnected from ipc socket", logging.String("socket", endpoint))
	return nil
}

// Write encodes payload as JSON and sends it as one frame.
func (m *StreamManager) Write(payload any, opcode uint32) error {
	if m.conn == nil {
		return ErrNotConnected
	}
	frame, err := EncodeFrame(opcode, payload)
	if err != nil {
		return err
	}
	if m.logger.Enabled(context.Background(), slog.LevelDebug) {
		m.logger.Debug("sending ipc frame",
			logging.String("opcode", OpcodeName(opcode)),
			logging.String("payload", string(frame[frameHeaderLength:])))
	}
	if _, err := m.conn.Write(frame); err != nil {
		return fmt.Errorf("write ipc frame: %w", err)
	}
	m.observer.OnFrame(DirectionOut, opcode, len(frame))
	return nil
}

// Read blocks for one frame and decodes its payload.
func (m *StreamManager) Read() (uint32, Message, error) {
	if m.conn == nil {
		return 0, Message{}, ErrNotConnected
	}
	opcode, body, err := ReadFrame(m.conn)
	if err != nil {
		return 0, Message{}, err
	}
	m.observer.OnFrame(DirectionIn, opcode, frameHeaderLength+len(body))
	msg, err := DecodeMessage(body)
	if err != nil {
		return opcode, Message{}, err
	}
	m.logger.Debug("received ipc frame",
		logging.String("opcode", OpcodeName(opcode)),
		logging.String("message", msg.String()))
	return opcode, msg, nil
}

func (m *StreamManager) setState(state State) {
	if m.state == state {
		return
	}
	m.state = state
	m.observer.OnStateChange(state)
}

// Discover lists sockets in dir named <prefix>-<N>, sorted by N.
func Discover(dir, prefix string) ([]string, error) {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-(\d+)$`)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &DiscoveryError{Dir: dir, Pattern: pattern.String(), Err: err}
	}

	type candidate struct {
		path  string
		index uint64
	}
	var found []candidate
	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		index, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			continue
		}
		found = append(found, candidate{path: filepath.Join(dir, entry.Name()), index: index})
	}
	if len(found) == 0 {
		return nil, &DiscoveryError{Dir: dir, Pattern: pattern.String()}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })

	paths := make([]string, len(found))
	for i, c := range found {
		paths[i] = c.path
	}
	return paths, nil
}
