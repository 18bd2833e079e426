package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dstatus/internal/daemon"
	"dstatus/internal/logging"
	"dstatus/internal/metrics"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:    "internal-run",
		Short:  "Run the presence daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	paths := cfg.RuntimePaths()
	logger, err := logging.NewFromConfig(cfg, paths.LogFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if !ctx.configExists {
		logger.Info("configuration file not found; using defaults and environment",
			logging.String("config", ctx.configPath))
	}

	d, err := daemon.New(daemon.Options{
		ConfigPath: ctx.configPath,
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics.New(),
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(cmdCtx); err != nil {
		return fmt.Errorf("run daemon (log: %s): %w", paths.LogFile, err)
	}
	return nil
}
