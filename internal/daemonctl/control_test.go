package daemonctl_test

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"dstatus/internal/daemonctl"
)

const (
	helperEnv     = "DSTATUS_HELPER_PROCESS"
	helperModeEnv = "DSTATUS_HELPER_MODE"
	helperDirEnv  = "DSTATUS_HELPER_DIR"
)

// TestHelperProcess is not a real test. It is re-executed as a child by the
// tests below and behaves according to DSTATUS_HELPER_MODE.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	dir := os.Getenv(helperDirEnv)
	switch os.Getenv(helperModeEnv) {
	case "ignore-term":
		signal.Ignore(syscall.SIGTERM)
	case "hup":
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		_ = os.WriteFile(filepath.Join(dir, "ready"), nil, 0o644)
		select {
		case <-hup:
			_ = os.WriteFile(filepath.Join(dir, "hup"), nil, 0o644)
			os.Exit(0)
		case <-time.After(time.Minute):
			os.Exit(2)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "ready"), nil, 0o644)
	time.Sleep(time.Minute)
	os.Exit(0)
}

type helper struct {
	pidPath string
	dir     string
	pid     int
	exited  chan struct{}
}

func startHelper(t *testing.T, mode string) *helper {
	t.Helper()
	dir := t.TempDir()
	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(), helperEnv+"=1", helperModeEnv+"="+mode, helperDirEnv+"="+dir)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}
	h := &helper{
		pidPath: filepath.Join(dir, "dstatus.pid"),
		dir:     dir,
		pid:     cmd.Process.Pid,
		exited:  make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(h.exited)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-h.exited
	})

	writePID(t, h.pidPath, h.pid)
	waitFile(t, filepath.Join(dir, "ready"))
	return h
}

func writePID(t *testing.T, path string, pid int) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		t.Fatalf("write pid file: %v", err)
	}
}

func waitFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
}

// deadPID returns the pid of a process that has already exited and been reaped.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run short-lived child: %v", err)
	}
	return cmd.ProcessState.Pid()
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	if _, err := daemonctl.ReadPID(filepath.Join(dir, "missing.pid")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing file: expected fs.ErrNotExist, got %v", err)
	}

	garbage := filepath.Join(dir, "garbage.pid")
	if err := os.WriteFile(garbage, []byte("not-a-number\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := daemonctl.ReadPID(garbage); err == nil {
		t.Fatal("expected error for garbage pid file")
	}

	valid := filepath.Join(dir, "valid.pid")
	writePID(t, valid, 4321)
	pid, err := daemonctl.ReadPID(valid)
	if err != nil || pid != 4321 {
		t.Fatalf("ReadPID = %d, %v", pid, err)
	}
}

func TestProcessInfo(t *testing.T) {
	dir := t.TempDir()

	running, pid, err := daemonctl.ProcessInfo(filepath.Join(dir, "none.pid"))
	if err != nil || running || pid != 0 {
		t.Fatalf("no pid file: running=%v pid=%d err=%v", running, pid, err)
	}

	self := filepath.Join(dir, "self.pid")
	writePID(t, self, os.Getpid())
	running, pid, err = daemonctl.ProcessInfo(self)
	if err != nil || !running || pid != os.Getpid() {
		t.Fatalf("own pid: running=%v pid=%d err=%v", running, pid, err)
	}

	stale := filepath.Join(dir, "stale.pid")
	dead := deadPID(t)
	writePID(t, stale, dead)
	running, pid, err = daemonctl.ProcessInfo(stale)
	if err != nil || running || pid != dead {
		t.Fatalf("stale pid: running=%v pid=%d err=%v", running, pid, err)
	}
}

func TestStopTerminatesProcess(t *testing.T) {
	h := startHelper(t, "default")

	result, err := daemonctl.Stop(h.pidPath, 5*time.Second)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result.PID != h.pid || result.ForcedKill {
		t.Fatalf("result = %+v", result)
	}
	select {
	case <-h.exited:
	case <-time.After(5 * time.Second):
		t.Fatal("helper still running after Stop")
	}
	if _, err := os.Stat(h.pidPath); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("pid file should be removed, stat err = %v", err)
	}
}

func TestStopForceKillsAfterGrace(t *testing.T) {
	h := startHelper(t, "ignore-term")

	result, err := daemonctl.Stop(h.pidPath, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !result.ForcedKill {
		t.Fatalf("expected forced kill, got %+v", result)
	}
	select {
	case <-h.exited:
	case <-time.After(5 * time.Second):
		t.Fatal("helper survived SIGKILL")
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.pid")
	if _, err := daemonctl.Stop(missing, time.Second); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("missing pid file: expected ErrDaemonNotRunning, got %v", err)
	}

	stale := filepath.Join(dir, "stale.pid")
	writePID(t, stale, deadPID(t))
	if _, err := daemonctl.Stop(stale, time.Second); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("stale pid file: expected ErrDaemonNotRunning, got %v", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("stale pid file should be removed, stat err = %v", err)
	}
}

func TestStopRefusesCurrentProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "self.pid")
	writePID(t, path, os.Getpid())
	if _, err := daemonctl.Stop(path, time.Second); err == nil {
		t.Fatal("expected refusal to signal the current process")
	}
}

func TestReloadSendsHangup(t *testing.T) {
	h := startHelper(t, "hup")

	pid, err := daemonctl.Reload(h.pidPath)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if pid != h.pid {
		t.Fatalf("pid = %d, want %d", pid, h.pid)
	}
	waitFile(t, filepath.Join(h.dir, "hup"))
}

func TestReloadWhenNotRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pid")
	if _, err := daemonctl.Reload(path); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestWaitForStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dstatus.pid")
	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
	}()
	pid, err := daemonctl.WaitForStart(path, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitForStart: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d", pid)
	}

	if _, err := daemonctl.WaitForStart(filepath.Join(t.TempDir(), "never.pid"), 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestEnsureStartedReportsRunningDaemon(t *testing.T) {
	h := startHelper(t, "default")
	result, err := daemonctl.EnsureStarted(h.pidPath, "", daemonctl.LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != daemonctl.StartStateAlreadyRunning || result.Launched || result.PID != h.pid {
		t.Fatalf("result = %+v", result)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable path")
	}
}
