// Package storage defines the Provider capability used by workers to store
// and delete files, and its two implementations: a filesystem provider that
// writes into a public directory and an object-store provider backed by
// S3-compatible storage.
package storage
