// Package store defines the persistence contract for job records.
// Implementations live in internal/platform (postgres, redis) and in this
// package (an in-memory store for single-process deployments and tests).
package store
