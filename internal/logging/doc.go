// Package logging builds the structured slog loggers used by dstatus.
//
// It owns the console and JSON handlers, fans output out to stdout and the
// daemon log file, and exposes attribute helpers plus the shared field names
// (event_type, error_hint, impact, component) so every component emits log
// lines of the same shape. NewNop gives tests and optional wiring a logger
// that never fails.
package logging
