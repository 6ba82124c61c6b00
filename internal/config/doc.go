// Package config loads, normalizes, and validates Perch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PERCH_PLATFORM_TOKEN. The Config type centralizes every knob the daemon and
// CLI need, from broadcast window timing to enrichment analysis thresholds.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
