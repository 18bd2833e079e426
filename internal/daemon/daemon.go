package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"dstatus/internal/config"
	"dstatus/internal/ipc"
	"dstatus/internal/logging"
	"dstatus/internal/metrics"
	"dstatus/internal/presence"
)

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another dstatus daemon instance is already running")

// Options configures a Daemon.
type Options struct {
	// ConfigPath is reloaded on SIGHUP and watched for changes.
	ConfigPath string
	Config     *config.Config
	Logger     *slog.Logger
	// Metrics is optional; when nil no collectors are updated and no endpoint
	// is served.
	Metrics *metrics.Metrics
	// Presence replaces the RichPresence built from Config.
	Presence *presence.RichPresence
}

// Daemon owns one RichPresence and drives it on a ticker.
type Daemon struct {
	configPath string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	presence   *presence.RichPresence
	paths      config.RuntimePaths
	lock       *flock.Flock

	mu  sync.Mutex
	cfg config.Config

	reloads chan struct{}
}

// New validates opts and builds the presence client. No I/O happens until Run.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, errors.New("daemon requires configuration")
	}
	logger := logging.NewComponentLogger(opts.Logger, "daemon")
	cfg := opts.Config.Clone()

	rp := opts.Presence
	if rp == nil {
		streamOpts := append(presence.StreamOptions(cfg), ipc.WithLogger(opts.Logger))
		if opts.Metrics != nil {
			streamOpts = append(streamOpts, ipc.WithObserver(opts.Metrics))
		}
		rp = presence.New(cfg,
			presence.WithLogger(opts.Logger),
			presence.WithStream(ipc.NewStreamManager(streamOpts...)))
	}

	paths := cfg.RuntimePaths()
	return &Daemon{
		configPath: opts.ConfigPath,
		logger:     logger,
		metrics:    opts.Metrics,
		presence:   rp,
		paths:      paths,
		lock:       flock.New(paths.LockFile),
		cfg:        cfg,
		reloads:    make(chan struct{}, 1),
	}, nil
}

// Run blocks until ctx is cancelled, SIGINT/SIGTERM arrives, or the presence
// core fails. A clean shutdown returns nil.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// SIGHUP is caught before the pid file exists so dstatus reload can never
	// kill a daemon that is still starting.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	cfg := d.Config()
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	if err := writePIDFile(d.paths.PIDFile); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(d.paths.PIDFile)

	d.logger.Info("dstatus daemon starting",
		logging.Int("pid", os.Getpid()),
		logging.String("config", d.configPath),
		logging.String("lock", d.paths.LockFile),
		logging.Bool("watch_config", cfg.Daemon.WatchConfig))

	var wg sync.WaitGroup
	defer wg.Wait()
	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()
	if d.metrics != nil && cfg.Metrics.Bind != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.metrics.Serve(serveCtx, cfg.Metrics.Bind, d.logger); err != nil {
				logging.WarnWithContext(d.logger, "metrics endpoint stopped", "metrics_serve_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "/metrics and /healthz are unavailable"),
					logging.String(logging.FieldErrorHint, "Check metrics.bind for a free address"))
			}
		}()
	}

	defer func() {
		if err := d.presence.Close(); err != nil {
			d.logger.Warn("failed to close ipc connection", logging.Error(err))
		}
	}()
	// The handshake read does not observe ctx. A SIGTERM that lands while
	// Discord has accepted the socket but not yet answered is only seen once
	// the read returns, so dstatus off falls back to SIGKILL in that window.
	if err := d.presence.Start(); err != nil {
		d.logger.Error("presence handshake failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "presence_start_failed"),
			logging.String(logging.FieldErrorHint, hintFor(err)))
		return fmt.Errorf("start presence: %w", err)
	}

	if cfg.Daemon.WatchConfig && d.configPath != "" {
		watcher := newConfigWatcher(d.configPath, d.logger, d.TriggerReload)
		if err := watcher.Start(); err != nil {
			logging.WarnWithContext(d.logger, "config watcher unavailable", "config_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "edits apply only after SIGHUP or dstatus reload"),
				logging.String(logging.FieldErrorHint, "Run dstatus reload after editing the configuration"))
		} else {
			defer watcher.Stop()
		}
	}

	interval := intervalOf(cfg)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := d.push(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dstatus daemon shutting down")
			return nil
		case <-hup:
			d.logger.Info("received SIGHUP", logging.String(logging.FieldEventType, "config_reload_requested"))
			d.TriggerReload()
		case <-d.reloads:
			if next, ok := d.Reload(); ok && next != interval {
				interval = next
				ticker.Reset(interval)
				d.logger.Info("push interval changed", logging.Duration("interval", interval))
			}
		case <-ticker.C:
			if err := d.push(); err != nil {
				return err
			}
		}
	}
}

// TriggerReload queues a reload for the run loop. Pending requests coalesce.
func (d *Daemon) TriggerReload() {
	select {
	case d.reloads <- struct{}{}:
	default:
	}
}

// Reload re-reads the configuration file and hands the result to the presence
// client. On failure the previous snapshot stays active. It returns the push
// interval of the active configuration and whether the reload succeeded.
func (d *Daemon) Reload() (time.Duration, bool) {
	next, _, _, err := config.Load(d.configPath)
	if d.metrics != nil {
		d.metrics.ObserveReload(err)
	}
	if err != nil {
		logging.WarnWithContext(d.logger, "config reload failed; keeping previous configuration", "config_reload_failed",
			logging.Error(err),
			logging.String("config", d.configPath),
			logging.String(logging.FieldImpact, "presence keeps showing the previous activity"),
			logging.String(logging.FieldErrorHint, "Fix the file and run dstatus config validate"))
		return intervalOf(d.Config()), false
	}

	d.mu.Lock()
	previous := d.cfg
	d.cfg = next.Clone()
	d.mu.Unlock()

	if next.ClientID != previous.ClientID {
		logging.WarnWithContext(d.logger, "client_id changed; the open connection keeps the old application", "client_id_changed",
			logging.String(logging.FieldImpact, "the new application id is used after a restart"),
			logging.String(logging.FieldErrorHint, "Run dstatus restart"))
	}
	d.presence.UpdateConfig(*next)
	d.logger.Info("configuration reloaded",
		logging.String(logging.FieldEventType, "config_reloaded"),
		logging.String("details", next.Details),
		logging.String("state", next.State))
	return intervalOf(*next), true
}

// Config returns a copy of the active configuration.
func (d *Daemon) Config() config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Clone()
}

// Paths returns the runtime file locations.
func (d *Daemon) Paths() config.RuntimePaths { return d.paths }

func (d *Daemon) push() error {
	reply, err := d.presence.SetActivity()
	if err != nil {
		if d.metrics != nil {
			d.metrics.ObserveActivity(metrics.ResultFailure)
		}
		d.logger.Error("activity update failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "activity_update_failed"),
			logging.String(logging.FieldErrorHint, hintFor(err)))
		return fmt.Errorf("set activity: %w", err)
	}
	if d.metrics != nil {
		if reply.IsError() {
			d.metrics.ObserveActivity(metrics.ResultRemote)
		} else {
			d.metrics.ObserveActivity(metrics.ResultSuccess)
		}
	}
	return nil
}

func hintFor(err error) string {
	var (
		discovery *ipc.DiscoveryError
		connect   *ipc.ConnectionError
		remote    *ipc.RemoteError
	)
	switch {
	case errors.As(err, &discovery), errors.As(err, &connect):
		return "Start the Discord desktop client, then run dstatus on"
	case errors.As(err, &remote):
		return "Check client_id matches your Discord application"
	default:
		return "Discord closed the connection; run dstatus on to reconnect"
	}
}

func intervalOf(cfg config.Config) time.Duration {
	seconds := cfg.Daemon.IntervalSeconds
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
