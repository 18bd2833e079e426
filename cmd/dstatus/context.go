package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"dstatus/internal/config"
	"dstatus/internal/daemonctl"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	// skipValidation loads the file with config.Read. Process control sets it
	// so a daemon can still be stopped or signalled after its file breaks.
	skipValidation bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		load := config.Load
		if c.skipValidation {
			load = config.Read
		}
		cfg, path, exists, err := load(c.configFlagValue())
		if err != nil {
			c.configErr = err
			return
		}
		if level := c.logLevelValue(); level != "" {
			cfg.Logging.Level = strings.ToLower(level)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) logLevelValue() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.logLevelFlag)
}

func (c *commandContext) pidPath() string {
	cfg := c.configValue()
	if cfg == nil {
		return ""
	}
	return cfg.RuntimePaths().PIDFile
}

func (c *commandContext) launchOptions() daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: c.logLevelValue()}
	if c.configPath != "" {
		opts.ConfigPath = c.configPath
	} else {
		opts.ConfigPath = c.configFlagValue()
	}
	return opts
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	return hasAnnotation(cmd, "skipConfigLoad")
}

func shouldSkipValidation(cmd *cobra.Command) bool {
	return hasAnnotation(cmd, "skipConfigValidation")
}

func hasAnnotation(cmd *cobra.Command, key string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations[key] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
