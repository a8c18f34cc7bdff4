// Package config loads, normalizes, and validates kiln configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file next to the
// config, and honours environment fallbacks such as KILN_API_KEY. The Config
// type centralizes every knob the daemon and CLI need, from provider
// credentials and concurrency limits to snapshot and upload backends.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enumerations, and clear validation errors.
package config
