// Package logging builds the slog loggers used across the daemon and CLI.
//
// It provides console and JSON handlers selectable by configuration, thin
// aliases over slog attribute constructors, standardized structured field
// keys (component, job_id, stage, correlation_id), context-derived logger
// enrichment, and a sampler that keeps progress logging from flooding output.
package logging
