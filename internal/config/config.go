package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Button is a clickable link shown under the presence.
type Button struct {
	Label string `toml:"label"`
	URL   string `toml:"url"`
}

// Daemon controls the background process.
type Daemon struct {
	IntervalSeconds int    `toml:"interval_seconds"`
	RuntimeDir      string `toml:"runtime_dir"`
	WatchConfig     bool   `toml:"watch_config"`
}

// IPC controls discovery of the Discord socket.
type IPC struct {
	Dir                string `toml:"dir"`
	SocketPrefix       string `toml:"socket_prefix"`
	DialTimeoutSeconds int    `toml:"dial_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics controls the optional Prometheus endpoint. An empty bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Config is the full dstatus configuration. The top-level fields describe the
// presence pushed to Discord; the tables below configure the process.
type Config struct {
	ClientID     string   `toml:"client_id"`
	Details      string   `toml:"details"`
	State        string   `toml:"state"`
	LargeImage   string   `toml:"large_image"`
	LargeText    string   `toml:"large_text"`
	SmallImage   string   `toml:"small_image"`
	SmallText    string   `toml:"small_text"`
	PartySize    int      `toml:"party_size"`
	MaxPartySize int      `toml:"max_party_size"`
	Buttons      []Button `toml:"buttons,omitempty"`

	// Reserved for timestamp support; parsed and saved but never sent.
	Timestamps     bool  `toml:"timestamps"`
	CountdownStart int64 `toml:"countdown_start"`

	Daemon  Daemon  `toml:"daemon"`
	IPC     IPC     `toml:"ipc"`
	Logging Logging `toml:"logging"`
	Metrics Metrics `toml:"metrics"`
}

// RuntimePaths are the files the daemon owns inside Daemon.RuntimeDir.
type RuntimePaths struct {
	PIDFile  string
	LockFile string
	LogFile  string
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	if c.Buttons != nil {
		c.Buttons = append([]Button(nil), c.Buttons...)
	}
	return c
}

// RuntimePaths resolves pid, lock, and log file locations.
func (c *Config) RuntimePaths() RuntimePaths {
	dir := c.Daemon.RuntimeDir
	return RuntimePaths{
		PIDFile:  filepath.Join(dir, "dstatus.pid"),
		LockFile: filepath.Join(dir, "dstatus.lock"),
		LogFile:  filepath.Join(dir, "dstatus.log"),
	}
}

// DefaultConfigPath returns the absolute path of the default configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. It returns the
// config, the resolved path, and whether the file existed. A missing file
// yields defaults, which only validate when DSTATUS_CLIENT_ID is set.
func Load(path string) (*Config, string, bool, error) {
	cfg, resolved, exists, err := Read(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, fmt.Errorf("config %s: %w", resolved, err)
	}
	return cfg, resolved, exists, nil
}

// Read is Load without Validate. Process control and configure use it so a
// file that no longer validates can still be acted on.
func Read(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// Save writes the configuration as TOML, creating the parent directory.
func (c *Config) Save(path string) error {
	target, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the runtime directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Daemon.RuntimeDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Daemon.RuntimeDir, err)
	}
	return nil
}

// CreateSample writes the sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		switch {
		case pathValue == "~":
			pathValue = home
		case pathValue[1] == '/':
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
