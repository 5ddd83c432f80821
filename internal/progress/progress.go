// Package progress fans realtime job events out to subscribers. The
// in-process Hub serves the daemon's SSE connections; the Redis
// decorator mirrors events onto pub/sub channels so other processes can
// observe the same stream.
package progress

import (
	"context"
	"time"

	"docforge/internal/queue"
)

// Event is one realtime progress update for a job.
type Event struct {
	JobID           string       `json:"jobId"`
	Status          queue.Status `json:"status"`
	Stage           string       `json:"stage,omitempty"`
	StageProgress   float64      `json:"stageProgress"`
	OverallProgress float64      `json:"overallProgress"`
	Message         string       `json:"message,omitempty"`
	ErrorCode       string       `json:"errorCode,omitempty"`
	Origin          string       `json:"origin,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

// Terminal reports whether this event ends the job's stream.
func (e Event) Terminal() bool {
	return e.Status.IsTerminal()
}

// Publisher is the write side of the broadcaster. The pipeline executor
// publishes; it never blocks on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// FromJob builds the event snapshot describing a job's current state.
func FromJob(job *queue.Job) Event {
	return Event{
		JobID:           job.ID,
		Status:          job.Status,
		Stage:           job.CurrentStage,
		StageProgress:   job.StageProgress,
		OverallProgress: job.OverallProgress,
		Message:         job.ProgressMessage,
		ErrorCode:       job.ErrorCode,
		Timestamp:       time.Now().UTC(),
	}
}
