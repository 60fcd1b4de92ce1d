// Package config provides configuration loading and validation for the PhantomEar pipeline daemon.
// It handles YAML-based configuration with struct validation, built-in defaults,
// and duration accessors for time-valued fields.
package config
