// Package metrics exposes Prometheus counters for the IPC connection and the
// daemon loop, plus a small HTTP handler serving /metrics and /healthz.
package metrics
