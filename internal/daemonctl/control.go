package daemonctl

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrDaemonNotRunning indicates no live process owns the pid file.
var ErrDaemonNotRunning = errors.New("daemon not running")

const (
	pollInterval = 100 * time.Millisecond
	// startupSettle is how long a freshly launched daemon must keep its pid
	// file before it counts as started. It removes the file when the
	// handshake fails.
	startupSettle = 750 * time.Millisecond
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	ForcedKill bool
	PID        int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Launch starts a detached daemon process in its own session with stdio
// pointed at /dev/null. The daemon writes its own log file.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"internal-run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	proc := exec.Command(executablePath, args...)
	proc.Stdin = devNull
	proc.Stdout = devNull
	proc.Stderr = devNull
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// ReadPID parses the pid file. A missing file wraps fs.ErrNotExist.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q holds %q, not a pid", pidPath, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// ProcessInfo reports whether the process named by the pid file is alive. A
// stale file returns false with the recorded pid.
func ProcessInfo(pidPath string) (bool, int, error) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return alive(pid), pid, nil
}

func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// WaitForStart waits until the pid file names a live process.
func WaitForStart(pidPath string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		running, pid, err := ProcessInfo(pidPath)
		if err == nil && running {
			return pid, nil
		}
		lastErr = err
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for %s", pidPath)
	}
	return 0, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// WaitForShutdown waits until pid no longer exists.
func WaitForShutdown(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("daemon process %d did not exit within %s", pid, timeout)
}

// EnsureStarted launches the daemon unless one is already running.
func EnsureStarted(pidPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	running, pid, err := ProcessInfo(pidPath)
	if err != nil {
		return StartResult{}, err
	}
	if running {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}
	if pid > 0 {
		if err := removePIDFile(pidPath); err != nil {
			return StartResult{}, err
		}
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	pid, err = WaitForStart(pidPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	time.Sleep(startupSettle)
	if _, err := ReadPID(pidPath); err != nil {
		return StartResult{}, fmt.Errorf("daemon exited during startup (pid %d); check the daemon log", pid)
	}
	return StartResult{State: StartStateStarted, Launched: true, PID: pid}, nil
}

// Stop sends SIGTERM and escalates to SIGKILL when the process outlives
// gracePeriod. A stale pid file is removed and reported as not running.
func Stop(pidPath string, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := ProcessInfo(pidPath)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		if pid > 0 {
			if err := removePIDFile(pidPath); err != nil {
				return StopResult{}, err
			}
		}
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return result, removePIDFile(pidPath)
		}
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if err := WaitForShutdown(pid, gracePeriod); err == nil {
		return result, removePIDFile(pidPath)
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	result.ForcedKill = true
	if err := WaitForShutdown(pid, gracePeriod); err != nil {
		return result, err
	}
	return result, removePIDFile(pidPath)
}

// Reload asks the running daemon to re-read its configuration.
func Reload(pidPath string) (int, error) {
	running, pid, err := ProcessInfo(pidPath)
	if err != nil {
		return 0, err
	}
	if !running {
		return pid, ErrDaemonNotRunning
	}
	if err := unix.Kill(pid, unix.SIGHUP); err != nil {
		return pid, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return pid, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(pidPath, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := Stop(pidPath, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(pidPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

func removePIDFile(pidPath string) error {
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	return nil
}
