package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dstatus/internal/config"
)

// WriteConfigFile saves cfg as TOML next to its runtime directory and returns
// the path.
func WriteConfigFile(t testing.TB, cfg *config.Config) string {
	t.Helper()

	path := filepath.Join(BaseDir(cfg), "configuration.toml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

// StaleSocket creates a plain file named like a socket. Dialing it fails the
// same way a socket left behind by a crashed client does.
func StaleSocket(t testing.TB, dir string, index int) string {
	t.Helper()

	path := filepath.Join(dir, socketName(index))
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write stale socket %s: %v", path, err)
	}
	return path
}
