package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"dstatus/internal/config"
	"dstatus/internal/daemonctl"
	"dstatus/internal/ipc"
)

type statusLine struct {
	Label  string
	Kind   statusKind
	Detail string
}

type statusSnapshot struct {
	Daemon    []statusLine
	Discord   []statusLine
	Endpoints []string
	Presence  [][]string
}

func buildStatusSnapshot(cfg *config.Config, configPath string, configExists bool) statusSnapshot {
	var snap statusSnapshot
	paths := cfg.RuntimePaths()

	running, pid, err := daemonctl.ProcessInfo(paths.PIDFile)
	switch {
	case err != nil:
		snap.Daemon = append(snap.Daemon, statusLine{"Daemon", statusError, err.Error()})
	case running:
		snap.Daemon = append(snap.Daemon, statusLine{"Daemon", statusOK, fmt.Sprintf("Running (pid %d)", pid)})
	case pid > 0:
		snap.Daemon = append(snap.Daemon, statusLine{"Daemon", statusWarn, fmt.Sprintf("Not running (stale pid %d; run `dstatus on`)", pid)})
	default:
		snap.Daemon = append(snap.Daemon, statusLine{"Daemon", statusWarn, "Not running (run `dstatus on`)"})
	}
	if configExists {
		snap.Daemon = append(snap.Daemon, statusLine{"Config", statusOK, configPath})
	} else {
		snap.Daemon = append(snap.Daemon, statusLine{"Config", statusInfo, configPath + " (missing; defaults and environment)"})
	}
	snap.Daemon = append(snap.Daemon,
		statusLine{"Log", statusInfo, paths.LogFile},
		statusLine{"Watch config", statusInfo, yesNo(cfg.Daemon.WatchConfig)},
	)
	if cfg.Metrics.Bind != "" {
		snap.Daemon = append(snap.Daemon, statusLine{"Metrics", statusInfo, "http://" + cfg.Metrics.Bind + "/metrics"})
	}

	dir := ipcDir(cfg)
	snap.Discord = append(snap.Discord, statusLine{"IPC directory", statusInfo, dir})
	endpoints, err := ipc.Discover(dir, cfg.IPC.SocketPrefix)
	if err != nil {
		snap.Discord = append(snap.Discord, statusLine{"Endpoints", statusWarn, "None found (is the Discord desktop client running?)"})
	} else {
		snap.Discord = append(snap.Discord, statusLine{"Endpoints", statusOK, fmt.Sprintf("%d found", len(endpoints))})
		snap.Endpoints = endpoints
	}

	snap.Presence = presenceRows(cfg)
	return snap
}

func ipcDir(cfg *config.Config) string {
	if cfg.IPC.Dir != "" {
		return cfg.IPC.Dir
	}
	return os.TempDir()
}

func presenceRows(cfg *config.Config) [][]string {
	rows := [][]string{
		{"Client ID", cfg.ClientID},
		{"Details", cfg.Details},
		{"State", cfg.State},
		{"Large image", assetLabel(cfg.LargeImage, cfg.LargeText)},
		{"Small image", assetLabel(cfg.SmallImage, cfg.SmallText)},
		{"Party", fmt.Sprintf("%d of %d", cfg.PartySize, cfg.MaxPartySize)},
		{"Interval", strconv.Itoa(cfg.Daemon.IntervalSeconds) + "s"},
	}
	for i, button := range cfg.Buttons {
		rows = append(rows, []string{fmt.Sprintf("Button %d", i+1), button.Label + " -> " + button.URL})
	}
	return rows
}

func assetLabel(key, text string) string {
	if text == "" {
		return key
	}
	return fmt.Sprintf("%s (%s)", key, text)
}

func renderStatus(w io.Writer, snap statusSnapshot, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(w, line)
	}
	for _, line := range snap.Daemon {
		fmt.Fprintln(w, renderStatusLine(line.Label, line.Kind, line.Detail, colorize))
	}
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Discord", colorize) {
		fmt.Fprintln(w, line)
	}
	for _, line := range snap.Discord {
		fmt.Fprintln(w, renderStatusLine(line.Label, line.Kind, line.Detail, colorize))
	}
	if len(snap.Endpoints) > 0 {
		rows := make([][]string, 0, len(snap.Endpoints))
		for i, endpoint := range snap.Endpoints {
			rows = append(rows, []string{strconv.Itoa(i + 1), filepath.Base(endpoint)})
		}
		fmt.Fprintln(w, renderTable([]string{"Order", "Socket"}, rows, []columnAlignment{alignRight, alignLeft}))
	}
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Presence", colorize) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, renderTable([]string{"Field", "Value"}, snap.Presence, nil))
}
