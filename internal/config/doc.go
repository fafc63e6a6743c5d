// Package config loads and defaults tokenrelay configuration.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// JSON or YAML file, and RELAY_* environment variable overlays (applied last).
// Broker endpoints are treated as opaque connection parameters; the adapters
// own their interpretation.
package config
