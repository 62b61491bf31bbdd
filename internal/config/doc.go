// Package config loads, normalizes, and validates murmur's TOML
// configuration. Values resolve in three steps: repository defaults, the
// config file (default path or --config override), then normalization that
// expands ~ paths and lowercases enum-like fields. Validation failures are
// returned as errors rather than logged so the CLI can surface them directly.
package config
