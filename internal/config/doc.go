// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the settings needed by the producer, the worker pool and the
// storage providers while keeping configuration details separate from
// pipeline logic.
package config
