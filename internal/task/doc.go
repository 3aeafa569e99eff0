// Package task moves file jobs from producers to workers.
//
// A Producer stages uploads, publishes a Job and waits a bounded time for its
// completion event. A WorkerPool consumes jobs with fixed concurrency and hands
// each to a Processor, which dispatches by job type to a storage provider.
// Queue implementations: MemoryQueue here, and a Redis-backed queue in
// internal/platform/broker.
package task
