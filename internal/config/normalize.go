package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizePresence()
	if err := c.normalizeDaemon(); err != nil {
		return err
	}
	if err := c.normalizeIPC(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	return nil
}

func (c *Config) normalizePresence() {
	c.ClientID = trimQuoted(c.ClientID)
	if c.ClientID == "" {
		if value, ok := os.LookupEnv(clientIDEnvironmentVar); ok {
			c.ClientID = trimQuoted(value)
		}
	}
	c.Details = trimQuoted(c.Details)
	c.State = trimQuoted(c.State)
	c.LargeImage = strings.TrimSpace(c.LargeImage)
	c.LargeText = strings.TrimSpace(c.LargeText)
	c.SmallImage = strings.TrimSpace(c.SmallImage)
	c.SmallText = strings.TrimSpace(c.SmallText)
	for i := range c.Buttons {
		c.Buttons[i].Label = strings.TrimSpace(c.Buttons[i].Label)
		c.Buttons[i].URL = strings.TrimSpace(c.Buttons[i].URL)
	}
}

func (c *Config) normalizeDaemon() error {
	if strings.TrimSpace(c.Daemon.RuntimeDir) == "" {
		c.Daemon.RuntimeDir = defaultRuntimeDir
	}
	var err error
	if c.Daemon.RuntimeDir, err = expandPath(strings.TrimSpace(c.Daemon.RuntimeDir)); err != nil {
		return fmt.Errorf("daemon.runtime_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeIPC() error {
	c.IPC.SocketPrefix = strings.TrimSpace(c.IPC.SocketPrefix)
	if c.IPC.SocketPrefix == "" {
		c.IPC.SocketPrefix = defaultSocketPrefix
	}
	c.IPC.SocketPrefix = strings.TrimSuffix(c.IPC.SocketPrefix, "-")
	if dir := strings.TrimSpace(c.IPC.Dir); dir != "" {
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("ipc.dir: %w", err)
		}
		c.IPC.Dir = expanded
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// trimQuoted strips whitespace and a surrounding pair of double quotes, which
// users often paste along with Discord application IDs.
func trimQuoted(value string) string {
	return strings.Trim(strings.TrimSpace(value), `"`)
}
