// Package main hosts the dstatus CLI entrypoint and command graph.
//
// The Cobra command tree starts, stops, and signals the background daemon
// through its pid file, renders a status summary, and scaffolds the
// configuration file. The hidden internal-run command is what the detached
// daemon process executes; everything it does lives in internal/daemon.
package main
