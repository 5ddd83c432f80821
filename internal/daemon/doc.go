// Package daemon assembles the enhancement service: it owns the queue
// store, the worker pool, the progress broadcaster, health monitoring,
// and the HTTP API, and enforces single-instance execution through a
// lock file.
package daemon
