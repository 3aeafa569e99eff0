// Package staging writes uploaded bytes to a process-local scratch directory
// so that only a small reference, not the bytes, crosses the job queue.
package staging
