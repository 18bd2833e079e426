package ipc_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"dstatus/internal/ipc"
	"dstatus/internal/testsupport"
)

type recordingObserver struct {
	mu     sync.Mutex
	states []ipc.State
	dials  []string
	failed []string
	frames []string
}

func (o *recordingObserver) OnStateChange(state ipc.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) OnDial(path string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dials = append(o.dials, filepath.Base(path))
	if err != nil {
		o.failed = append(o.failed, filepath.Base(path))
	}
}

func (o *recordingObserver) OnFrame(direction string, opcode uint32, size int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, direction+":"+ipc.OpcodeName(opcode))
}

func newManager(dir string, observer ipc.Observer) *ipc.StreamManager {
	return ipc.NewStreamManager(
		ipc.WithDir(dir),
		ipc.WithDialTimeout(time.Second),
		ipc.WithObserver(observer),
	)
}

func TestConnectWithoutCandidatesFails(t *testing.T) {
	dir := testsupport.ShortTempDir(t)
	for _, name := range []string{"discord-ipc-x", "discord-ipc-1.bak", "other-0", "discord-ipc-"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	observer := &recordingObserver{}
	m := newManager(dir, observer)

	err := m.Connect()
	var derr *ipc.DiscoveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DiscoveryError, got %v", err)
	}
	if m.State() != ipc.Pending || m.Connected() {
		t.Fatalf("state = %s connected=%v after failed discovery", m.State(), m.Connected())
	}
	if len(observer.dials) != 0 {
		t.Fatalf("expected no dial attempts, got %v", observer.dials)
	}
}

func TestConnectMissingDirectory(t *testing.T) {
	m := newManager(filepath.Join(testsupport.ShortTempDir(t), "missing"), nil)
	err := m.Connect()
	var derr *ipc.DiscoveryError
	if !errors.As(err, &derr) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected DiscoveryError wrapping ErrNotExist, got %v", err)
	}
}

func TestConnectSingleCandidate(t *testing.T) {
	dir := testsupport.ShortTempDir(t)
	peer := testsupport.StartPeer(t, dir, 0)
	observer := &recordingObserver{}
	m := newManager(dir, observer)

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = m.Disconnect() })

	if m.State() != ipc.Connected || !m.Connected() {
		t.Fatalf("state = %s connected=%v", m.State(), m.Connected())
	}
	if m.Endpoint() != peer.Path() {
		t.Fatalf("endpoint = %q, want %q", m.Endpoint(), peer.Path())
	}
	if want := []ipc.State{ipc.Pending, ipc.Connected}; !reflect.DeepEqual(observer.states, want) {
		t.Fatalf("state transitions = %v, want %v", observer.states, want)
	}
}

func TestConnectFallsThroughToLastCandidate(t *testing.T) {
	dir := testsupport.ShortTempDir(t)
	testsupport.StaleSocket(t, dir, 0)
	testsupport.StaleSocket(t, dir, 1)
	peer := testsupport.StartPeer(t, dir, 2)
	observer := &recordingObserver{}
	m := newManager(dir, observer)

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = m.Disconnect() })

	if m.Endpoint() != peer.Path() {
		t.Fatalf("endpoint = %q, want %q", m.Endpoint(), peer.Path())
	}
	if want := []string{"discord-ipc-0", "discord-ipc-1", "discord-ipc-2"}; !reflect.DeepEqual(observer.dials, want) {
		t.Fatalf("dials = %v, want %v", observer.dials, want)
	}
	if want := []string{"discord-ipc-0", "discord-ipc-1"}; !reflect.DeepEqual(observer.failed, want) {
		t.Fatalf("failed dials = %v, want %v", observer.failed, want)
	}
}

func TestConnectStopsAtFirstSuccess(t *testing.T) {
	dir := testsupport.ShortTempDir(t)
	first := testsupport.StartPeer(t, dir, 0)
	second := testsupport.StartPeer(t, dir, 1)
	observer := &recordingObserver{}
	m := newManager(dir, observer)

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = m.Disconnect() })

	if m.Endpoint() != first.Path() {
		t.Fatalf("endpoint = %q, want %q", m.Endpoint(), first.Path())
	}
	if len(observer.dials) != 1 {
		t.Fatalf("expected exactly one dial, got %v", observer.dials)
	}
	if second.Accepted() != 0 {
		t.Fatalf("second candidate accepted %d connections", second.Accepted())
	}
}

func TestConnectAllCandidatesFail(t *testing.T) {
	dir := testsupport.ShortTempDir(t)
	testsupport.StaleSocket(t, dir, 3)
	testsupport.StaleSocket(t, dir, 7)
	m := newManager(dir, nil)

	err := m.Connect()
	var cerr *ipc.ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if cerr.Attempts != 2 || cerr.Err == nil {
		t.Fatalf("unexpected connection error: %+v", cerr)
	}
	if m.State() != ipc.Pending || m.Connected() {
		t.Fatalf("state = %s connected=%v", m.State(), m.Connected())
	}
}

func TestConnectTwiceFails(t *testing.T) {
	dir := testsupport.ShortTempDir(t)
	testsupport.StartPeer(t, dir, 0)
	m := newManager(dir, nil)
	if err := m.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = m.Disconnect() })

	if err := m.Connect(); err == nil {
		t.Fatal("expected second Connect to fail")
	}
	if m.State() != ipc.Connected {
		t.Fatalf("state = %s after rejected reconnect", m.State())
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	m := ipc.NewStreamManager()
	if m.State() != ipc.Disconnected {
		t.Fatalf("initial state = %s", m.State())
	}
	if err := m.Write(map[string]any{}, ipc.OpFrame); !errors.Is(err, ipc.ErrNotConnected) {
		t.Fatalf("Write: expected ErrNotConnected, got %v", err)
	}
	if _, _, err := m.Read(); !errors.Is(err, ipc.ErrNotConnected) {
		t.Fatalf("Read: expected ErrNotConnected, got %v", err)
	}
	if err := m.Disconnect(); !errors.Is(err, ipc.ErrNotConnected) {
		t.Fatalf("Disconnect: expected ErrNotConnected, got %v", err)
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := testsupport.ShortTempDir(t)
	peer := testsupport.StartPeer(t, dir, 0)
	observer := &recordingObserver{}
	m := newManager(dir, observer)
	if err := m.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = m.Disconnect() })

	if err := m.Write(map[string]any{"v": 1, "client_id": "abc"}, ipc.OpHandshake); err != nil {
		t.Fatalf("Write: %v", err)
	}
	frame := peer.WaitFrame(2 * time.Second)
	if frame.Opcode != ipc.OpHandshake {
		t.Fatalf("peer saw opcode %d", frame.Opcode)
	}
	if string(frame.Body) != `{"client_id":"abc","v":1}` {
		t.Fatalf("peer saw body %s", frame.Body)
	}

	opcode, msg, err := m.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if opcode != ipc.OpFrame || msg.Response == nil || msg.Response.Evt != "READY" {
		t.Fatalf("unexpected reply op=%d msg=%+v", opcode, msg)
	}

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if want := []string{"out:handshake", "in:frame"}; !reflect.DeepEqual(observer.frames, want) {
		t.Fatalf("frames = %v, want %v", observer.frames, want)
	}
}

func TestReadAfterPeerHangsUp(t *testing.T) {
	dir := testsupport.ShortTempDir(t)
	testsupport.StartPeer(t, dir, 0, testsupport.Reply{Close: true})
	m := newManager(dir, nil)
	if err := m.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = m.Disconnect() })

	if err := m.Write(map[string]any{"v": 1}, ipc.OpHandshake); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, _, err := m.Read()
	var perr *ipc.ProtocolError
	if !errors.As(err, &perr) || perr.Reason != "short header" {
		t.Fatalf("expected short header, got %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	dir := testsupport.ShortTempDir(t)
	testsupport.StartPeer(t, dir, 0)
	observer := &recordingObserver{}
	m := newManager(dir, observer)
	if err := m.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if m.State() != ipc.Disconnected || m.Connected() || m.Endpoint() != "" {
		t.Fatalf("state = %s connected=%v endpoint=%q", m.State(), m.Connected(), m.Endpoint())
	}
	if err := m.Disconnect(); !errors.Is(err, ipc.ErrNotConnected) {
		t.Fatalf("second Disconnect: expected ErrNotConnected, got %v", err)
	}
	if want := []ipc.State{ipc.Pending, ipc.Connected, ipc.Disconnected}; !reflect.DeepEqual(observer.states, want) {
		t.Fatalf("state transitions = %v, want %v", observer.states, want)
	}
}

func TestDiscoverSortsByNumericSuffix(t *testing.T) {
	dir := testsupport.ShortTempDir(t)
	for _, index := range []int{10, 2, 0} {
		testsupport.StaleSocket(t, dir, index)
	}
	paths, err := ipc.Discover(dir, ipc.DefaultSocketPrefix)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	if want := []string{"discord-ipc-0", "discord-ipc-2", "discord-ipc-10"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("order = %v, want %v", names, want)
	}
}

func TestDiscoverCustomPrefix(t *testing.T) {
	dir := testsupport.ShortTempDir(t)
	testsupport.StaleSocket(t, dir, 0)
	if err := os.WriteFile(filepath.Join(dir, "peer-ipc-4"), nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	paths, err := ipc.Discover(dir, "peer-ipc")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "peer-ipc-4" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestStateString(t *testing.T) {
	cases := map[ipc.State]string{
		ipc.Disconnected: "disconnected",
		ipc.Pending:      "pending",
		ipc.Connected:    "connected",
		ipc.State(9):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
