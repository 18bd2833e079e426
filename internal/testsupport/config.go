package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dstatus/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a valid config whose runtime and socket directories live
// under a fresh temp directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := ShortTempDir(t)
	cfgVal := config.Default()
	cfgVal.ClientID = "1234567890"
	cfgVal.Details = "Testing"
	cfgVal.State = "Green"
	cfgVal.Daemon.RuntimeDir = filepath.Join(base, "run")
	cfgVal.Daemon.IntervalSeconds = 1
	cfgVal.IPC.Dir = filepath.Join(base, "ipc")
	if err := os.MkdirAll(cfgVal.IPC.Dir, 0o755); err != nil {
		t.Fatalf("mkdir ipc dir: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithClientID overrides the application id.
func WithClientID(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ClientID = id
	}
}

// WithButtons sets the presence buttons.
func WithButtons(buttons ...config.Button) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Buttons = buttons
	}
}

// WithWatchConfig toggles the config file watcher.
func WithWatchConfig(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.WatchConfig = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Daemon.RuntimeDir)
}

// ShortTempDir returns a temp directory with a short path. Unix socket paths
// are limited to about 100 bytes, which t.TempDir can exceed for long test
// names.
func ShortTempDir(t testing.TB) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "dst")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})
	return dir
}
