// Package config loads, normalizes, and validates courier configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// COURIER_API_TOKEN and COURIER_STORE_DSN. The Config type centralizes every
// knob the daemon and CLI need: worker pool sizing, retry and retention
// windows, the store backend, and collaborator endpoints.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
