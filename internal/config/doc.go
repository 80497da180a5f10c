// Package config loads and validates the service YAML configuration and
// merges the shared MAGI shell config.json overrides.
package config
