package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePresence(); err != nil {
		return err
	}
	if err := c.validateButtons(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if c.IPC.DialTimeoutSeconds < 0 {
		return errors.New("ipc.dial_timeout_seconds must be zero or positive")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validatePresence() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required. Set %s or run 'dstatus configure'", clientIDEnvironmentVar)
	}
	for _, field := range []struct{ name, value string }{
		{"details", c.Details},
		{"state", c.State},
	} {
		if utf8.RuneCountInString(field.value) > maxPresenceTextLength {
			return fmt.Errorf("%s must be at most %d characters", field.name, maxPresenceTextLength)
		}
	}
	if c.PartySize < 0 || c.MaxPartySize < 0 {
		return errors.New("party_size and max_party_size must be zero or positive")
	}
	if c.MaxPartySize > 0 && c.PartySize > c.MaxPartySize {
		return fmt.Errorf("party_size (%d) must not exceed max_party_size (%d)", c.PartySize, c.MaxPartySize)
	}
	return nil
}

func (c *Config) validateButtons() error {
	if len(c.Buttons) > maxButtons {
		return fmt.Errorf("at most %d buttons are allowed, got %d", maxButtons, len(c.Buttons))
	}
	for i, button := range c.Buttons {
		if button.Label == "" || button.URL == "" {
			return fmt.Errorf("buttons[%d]: label and url cannot be empty", i)
		}
		parsed, err := url.Parse(button.URL)
		if err != nil {
			return fmt.Errorf("buttons[%d].url: %w", i, err)
		}
		if scheme := strings.ToLower(parsed.Scheme); (scheme != "http" && scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("buttons[%d].url must be an http(s) URL, got %q", i, button.URL)
		}
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.IntervalSeconds < 1 {
		return errors.New("daemon.interval_seconds must be at least 1")
	}
	return nil
}
