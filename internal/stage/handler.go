// Package stage defines the contract between the pipeline executor and
// the individual enhancement stages.
package stage

import (
	"context"
	"log/slog"

	"docforge/internal/queue"
)

// Handler describes the contract the pipeline executor needs from each stage.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}

// LoggerAware lets the executor inject a job-scoped logger before a
// stage runs.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// ProgressFunc reports intra-stage progress in [0,100] with a short
// human-readable message.
type ProgressFunc func(percent float64, message string)

// ProgressAware lets the executor wire a progress sink into a stage
// before Execute.
type ProgressAware interface {
	SetProgressFunc(ProgressFunc)
}
