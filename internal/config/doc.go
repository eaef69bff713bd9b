// Package config loads, normalizes, and validates the TOML run
// configuration shared by every pipeline component. The configuration is
// constructed once at startup and read-only afterwards.
package config
