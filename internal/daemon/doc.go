// Package daemon runs the long-lived dstatus process.
//
// It takes a flock-based single-instance lock, writes the PID file, performs
// the Rich Presence handshake and then pushes the configured activity on a
// fixed interval. SIGHUP and, optionally, edits to the configuration file
// trigger a reload that swaps the presence snapshot without touching the
// connection. Any failure of the presence core ends the process; restarting is
// left to the user or a service manager.
package daemon
