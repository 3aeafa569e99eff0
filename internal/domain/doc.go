// Package domain contains the core entities of the file pipeline: jobs, their
// payloads, staged file references and the records produced by storage
// providers. It has no dependencies on queue, storage or transport code.
package domain
