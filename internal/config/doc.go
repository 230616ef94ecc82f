// Package config loads, normalizes, and validates Galleria configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GALLERIA_PROXY. The Config type centralizes every knob the orchestrator and
// CLI need: where galleries are written, how the download engine is launched,
// which hosts go through the proxy, and how aggressively stalled transfers are
// restarted.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config
