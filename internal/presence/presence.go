package presence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"dstatus/internal/config"
	"dstatus/internal/ipc"
	"dstatus/internal/logging"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("presence: already started")

// Option customises a RichPresence.
type Option func(*RichPresence)

// WithStream supplies the stream manager instead of building one from the
// configuration.
func WithStream(stream *ipc.StreamManager) Option {
	return func(rp *RichPresence) {
		rp.stream = stream
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rp *RichPresence) {
		if logger != nil {
			rp.logger = logger
		}
	}
}

// WithNonceSource replaces the correlation token generator.
func WithNonceSource(next func() string) Option {
	return func(rp *RichPresence) {
		if next != nil {
			rp.nonce = next
		}
	}
}

// WithPID overrides the process id reported in SET_ACTIVITY.
func WithPID(pid uint32) Option {
	return func(rp *RichPresence) {
		rp.pid = pid
	}
}

// StreamOptions derives stream manager options from the [ipc] table.
func StreamOptions(cfg config.Config) []ipc.Option {
	return []ipc.Option{
		ipc.WithDir(cfg.IPC.Dir),
		ipc.WithSocketPrefix(cfg.IPC.SocketPrefix),
		ipc.WithDialTimeout(time.Duration(cfg.IPC.DialTimeoutSeconds) * time.Second),
	}
}

// RichPresence runs the handshake and pushes activity updates over one
// connection. Start and SetActivity must be called from a single goroutine;
// UpdateConfig may be called from any goroutine.
type RichPresence struct {
	mu  sync.Mutex
	cfg config.Config

	stream *ipc.StreamManager
	logger *slog.Logger
	nonce  func() string
	pid    uint32
	ready  bool
}

// New stores a copy of cfg. No connection is made until Start.
func New(cfg config.Config, opts ...Option) *RichPresence {
	rp := &RichPresence{
		cfg:    cfg.Clone(),
		logger: logging.NewNop(),
		nonce:  uuid.NewString,
		pid:    uint32(os.Getpid()),
	}
	for _, opt := range opts {
		opt(rp)
	}
	if rp.stream == nil {
		rp.stream = ipc.NewStreamManager(append(StreamOptions(cfg), ipc.WithLogger(rp.logger))...)
	}
	rp.logger = logging.NewComponentLogger(rp.logger, "presence")
	return rp
}

// UpdateConfig replaces the snapshot used by the next SetActivity. An update
// already in flight keeps the snapshot it started with.
func (rp *RichPresence) UpdateConfig(cfg config.Config) {
	rp.mu.Lock()
	rp.cfg = cfg.Clone()
	rp.mu.Unlock()
	rp.logger.Debug("presence configuration replaced")
}

// Config returns a copy of the current snapshot.
func (rp *RichPresence) Config() config.Config {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.cfg.Clone()
}

// State reports the underlying connection state.
func (rp *RichPresence) State() ipc.State { return rp.stream.State() }

// Endpoint returns the connected socket path, or "".
func (rp *RichPresence) Endpoint() string { return rp.stream.Endpoint() }

// Start connects, sends the handshake and waits for its reply. The peer must
// answer on the frame opcode; an error payload becomes *ipc.RemoteError.
func (rp *RichPresence) Start() error {
	if rp.ready {
		return ErrAlreadyStarted
	}
	snapshot := rp.Config()
	rp.logger.Info("connecting to discord", logging.String("client_id", snapshot.ClientID))

	if err := rp.stream.Connect(); err != nil {
		return err
	}
	if err := rp.stream.Write(NewHandshake(snapshot.ClientID), ipc.OpHandshake); err != nil {
		return err
	}
	op, msg, err := rp.stream.Read()
	if err != nil {
		return err
	}
	if op != ipc.OpFrame {
		return &ipc.ProtocolError{Reason: fmt.Sprintf("expected opcode %d after handshake, got %d", ipc.OpFrame, op)}
	}
	if err := msg.Err(); err != nil {
		return err
	}

	rp.ready = true
	rp.logger.Info("handshake complete",
		logging.String("socket", rp.stream.Endpoint()),
		logging.String("reply", msg.String()))
	return nil
}

// SetActivity pushes the current snapshot and waits for one reply. The reply
// is returned as-is; it is not matched against the request nonce.
func (rp *RichPresence) SetActivity() (ipc.Message, error) {
	if !rp.ready {
		return ipc.Message{}, ipc.ErrNotConnected
	}
	snapshot := rp.Config()
	command := NewSetActivity(rp.pid, rp.nonce(), BuildActivity(snapshot))

	if err := rp.stream.Write(command, ipc.OpFrame); err != nil {
		return ipc.Message{}, err
	}
	op, msg, err := rp.stream.Read()
	if err != nil {
		return ipc.Message{}, err
	}

	if msg.IsError() {
		logging.WarnWithContext(rp.logger, "discord rejected activity update", "activity_rejected",
			logging.Uint64("code", uint64(msg.Error.Code)),
			logging.String("message", msg.Error.Message),
			logging.String(logging.FieldImpact, "presence shows the previous activity"),
			logging.String(logging.FieldErrorHint, "Check asset keys and button URLs in the configuration"))
	} else {
		rp.logger.Debug("activity updated",
			logging.String("nonce", command.Nonce),
			logging.String("opcode", ipc.OpcodeName(op)),
			logging.String("reply", msg.String()))
	}
	return msg, nil
}

// Close drops the connection if one is open.
func (rp *RichPresence) Close() error {
	rp.ready = false
	if !rp.stream.Connected() {
		return nil
	}
	if err := rp.stream.Disconnect(); err != nil && !errors.Is(err, ipc.ErrNotConnected) {
		return err
	}
	return nil
}
