package testsupport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dstatus/internal/ipc"
)

// Frame is a frame captured by the fake peer.
type Frame struct {
	Opcode uint32
	Body   []byte
}

// Decode unmarshals the frame body into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Body, v)
}

// Reply scripts the peer's answer to one received frame. Raw, when set, is
// written verbatim instead of an encoded Payload. Close drops the connection
// after the reply is written; a Reply with only Close set sends nothing. Hold,
// when set, delays the reply until the channel is closed.
type Reply struct {
	Opcode  uint32
	Payload any
	Raw     []byte
	Close   bool
	Hold    <-chan struct{}
}

// ReadyReply is what Discord answers to a successful handshake.
func ReadyReply() Reply {
	return Reply{
		Opcode: ipc.OpFrame,
		Payload: map[string]any{
			"cmd":  "DISPATCH",
			"evt":  "READY",
			"data": map[string]any{"v": 1, "user": map[string]any{"id": "42", "username": "tester"}},
		},
	}
}

// ErrorReply answers with an error payload.
func ErrorReply(code uint32, message string) Reply {
	return Reply{
		Opcode:  ipc.OpFrame,
		Payload: map[string]any{"code": code, "message": message},
	}
}

// Peer is a fake Discord client listening on <dir>/discord-ipc-<index>. It
// records every frame it receives and answers each one with the next scripted
// Reply, falling back to a READY dispatch for handshakes and an echo of the
// command for everything else.
type Peer struct {
	t        testing.TB
	path     string
	listener net.Listener

	mu       sync.Mutex
	replies  []Reply
	frames   []Frame
	accepted int
	conns    []net.Conn
	closed   bool
	received chan Frame

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// StartPeer listens on dir/discord-ipc-<index> and serves until the test ends.
func StartPeer(t testing.TB, dir string, index int, replies ...Reply) *Peer {
	t.Helper()

	path := filepath.Join(dir, socketName(index))
	listener, err := net.Listen("unix", path)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping: unix sockets unavailable: %v", err)
		}
		t.Fatalf("listen on %s: %v", path, err)
	}
	p := &Peer{
		t:        t,
		path:     path,
		listener: listener,
		replies:  append([]Reply(nil), replies...),
		received: make(chan Frame, 64),
	}
	p.wg.Add(1)
	go p.serve()
	t.Cleanup(p.Close)
	return p
}

// Path returns the socket path.
func (p *Peer) Path() string { return p.path }

// Script appends replies to the queue.
func (p *Peer) Script(replies ...Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, replies...)
}

// Frames returns a copy of every frame received so far.
func (p *Peer) Frames() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Frame(nil), p.frames...)
}

// Accepted returns how many connections the peer accepted.
func (p *Peer) Accepted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

// WaitFrame blocks until the next frame arrives or the timeout expires.
func (p *Peer) WaitFrame(timeout time.Duration) Frame {
	p.t.Helper()
	select {
	case f := <-p.received:
		return f
	case <-time.After(timeout):
		p.t.Fatalf("timed out waiting for frame on %s", p.path)
		return Frame{}
	}
}

// Close stops the listener and drops open connections.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		_ = p.listener.Close()
		p.mu.Lock()
		p.closed = true
		for _, c := range p.conns {
			_ = c.Close()
		}
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *Peer) serve() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = conn.Close()
			return
		}
		p.accepted++
		p.conns = append(p.conns, conn)
		p.mu.Unlock()

		p.wg.Add(1)
		go func(c net.Conn) {
			defer p.wg.Done()
			defer c.Close()
			p.handle(c)
		}(conn)
	}
}

func (p *Peer) handle(conn net.Conn) {
	for {
		opcode, body, err := ipc.ReadFrame(conn)
		if err != nil {
			return
		}
		frame := Frame{Opcode: opcode, Body: body}
		reply := p.record(frame)
		if reply != nil && reply.Hold != nil {
			<-reply.Hold
		}

		if err := writeReply(conn, frame, reply); err != nil {
			return
		}
		if reply != nil && reply.Close {
			return
		}
	}
}

func (p *Peer) record(frame Frame) *Reply {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame)
	select {
	case p.received <- frame:
	default:
	}
	if len(p.replies) == 0 {
		return nil
	}
	next := p.replies[0]
	p.replies = p.replies[1:]
	return &next
}

func writeReply(conn net.Conn, frame Frame, reply *Reply) error {
	if reply == nil {
		defaultReply := defaultReplyFor(frame)
		reply = &defaultReply
	}
	switch {
	case reply.Raw != nil:
		_, err := conn.Write(reply.Raw)
		return err
	case reply.Payload != nil:
		encoded, err := ipc.EncodeFrame(reply.Opcode, reply.Payload)
		if err != nil {
			return err
		}
		_, err = conn.Write(encoded)
		return err
	case reply.Close:
		return nil
	default:
		return errors.New("testsupport: empty reply")
	}
}

func defaultReplyFor(frame Frame) Reply {
	if frame.Opcode == ipc.OpHandshake {
		return ReadyReply()
	}
	var request struct {
		Cmd   string `json:"cmd"`
		Nonce string `json:"nonce"`
	}
	_ = json.Unmarshal(frame.Body, &request)
	return Reply{
		Opcode: ipc.OpFrame,
		Payload: map[string]any{
			"cmd":   request.Cmd,
			"data":  map[string]any{},
			"evt":   nil,
			"nonce": request.Nonce,
		},
	}
}

func socketName(index int) string {
	return fmt.Sprintf("%s-%d", ipc.DefaultSocketPrefix, index)
}
