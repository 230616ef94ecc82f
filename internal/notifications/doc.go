// Package notifications delivers gallery events via ntfy.
//
// The ntfy endpoint comes from notifications.ntfy_topic in config.toml (or
// GALLERIA_NTFY_TOPIC). When no topic is configured NewService returns a
// no-op so callers never need to check.
package notifications
