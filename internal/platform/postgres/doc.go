// Package postgres provides the PostgreSQL implementation of store.JobStore,
// the connection setup and the embedded schema migrations.
package postgres
