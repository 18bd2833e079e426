// Package config loads, normalizes, and validates dstatus configuration.
//
// The file is TOML. Presence fields (client_id, details, state, assets, party
// sizes, buttons) live at the top level so files written by earlier releases
// keep loading; daemon, IPC, logging, and metrics knobs live in their own
// tables. Load applies defaults, expands "~" in paths, honours the
// DSTATUS_CLIENT_ID environment fallback, and returns clear validation errors.
//
// The presence core receives Config by value. Use Clone when handing a config
// to another goroutine so the button slice is not shared.
package config
