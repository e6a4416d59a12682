// Package config loads, normalizes, and validates screen relay configuration.
//
// Settings come from repository defaults, an optional TOML file, and a small
// set of environment overrides (PORT, SCREEN_RELAY_HOST, SCREEN_RELAY_PORT).
// Always obtain settings through Load so callers receive trimmed strings and
// clear validation errors.
package config
