// Package config loads, normalizes, and validates console configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BOLETODESK_API_URL and BOLETODESK_TOKEN, which may also come from a .env
// file in the working directory. The Config type centralizes every knob the
// CLI and console need so the state directory and backend credentials are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
