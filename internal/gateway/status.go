package gateway

import (
	"context"
	"fmt"

	"docforge/internal/batch"
	"docforge/internal/enhance"
	"docforge/internal/queue"
	"docforge/internal/services"
)

// StatusResponse is the job status view. Queue fields are present only
// while the job is pending; result only after completion; error only
// after failure.
type StatusResponse struct {
	JobID                string               `json:"jobId"`
	Status               queue.Status         `json:"status"`
	CurrentStage         string               `json:"currentStage,omitempty"`
	StageProgress        float64              `json:"stageProgress"`
	OverallProgress      float64              `json:"overallProgress"`
	Message              string               `json:"message,omitempty"`
	Attempts             int                  `json:"attempts"`
	QueuePosition        int                  `json:"queuePosition,omitempty"`
	EstimatedWaitSeconds int                  `json:"estimatedWaitSeconds,omitempty"`
	Result               *enhance.Result      `json:"result,omitempty"`
	Error                *services.Classified `json:"error,omitempty"`
}

// CancelResponse reports the outcome of a cancellation.
type CancelResponse struct {
	JobID string `json:"jobId"`
	// Status is cancelled when the job was still pending, cancelling
	// when a worker holds it and will stop at the next stage boundary.
	Status     string `json:"status"`
	JobRemoved bool   `json:"jobRemoved"`
}

// GetStatus returns the job view. userID, when non-empty, must match
// the job's owner.
func (g *Gateway) GetStatus(ctx context.Context, userID, jobID string) (*StatusResponse, error) {
	job, err := g.lookup(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{
		JobID:           job.ID,
		Status:          job.Status,
		CurrentStage:    job.CurrentStage,
		StageProgress:   job.StageProgress,
		OverallProgress: job.OverallProgress,
		Message:         job.ProgressMessage,
		Attempts:        job.Attempts,
	}

	switch job.Status {
	case queue.StatusPending:
		rank, err := g.store.Rank(ctx, job)
		if err == nil {
			resp.QueuePosition = rank + 1
			resp.EstimatedWaitSeconds = g.estimateWait(rank)
		}
	case queue.StatusCompleted:
		if result, err := enhance.DecodeResult(job.ResultJSON); err == nil && result.EnhancedURL != "" {
			resp.Result = &result
		}
	case queue.StatusFailed:
		resp.Error = &services.Classified{
			Code:      job.ErrorCode,
			Message:   job.ErrorMessage,
			Retryable: job.ErrorRetryable,
		}
	}
	return resp, nil
}

// GetBatchStatus delegates to the batch coordinator after an ownership
// check.
func (g *Gateway) GetBatchStatus(ctx context.Context, userID, batchID string) (*batch.Status, error) {
	record, err := g.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "status",
			fmt.Sprintf("batch %s not found", batchID), nil)
	}
	if userID != "" && record.UserID != userID {
		return nil, services.Wrap(services.ErrPermission, "", "status",
			fmt.Sprintf("batch %s belongs to another user", batchID), nil)
	}
	return g.batches.Get(ctx, batchID)
}

// Cancel stops a job. A pending job terminalizes immediately; a claimed
// job gets the cooperative flag and stops at the next stage boundary.
func (g *Gateway) Cancel(ctx context.Context, userID, jobID string) (*CancelResponse, error) {
	job, err := g.lookup(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case queue.StatusPending:
		removed, err := g.store.CancelPending(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if removed {
			return &CancelResponse{JobID: jobID, Status: string(queue.StatusCancelled), JobRemoved: true}, nil
		}
		// A worker claimed it between the read and the update; fall
		// through to the cooperative path.
		fallthrough
	case queue.StatusProcessing:
		if _, err := g.store.RequestCancel(ctx, jobID); err != nil {
			return nil, err
		}
		return &CancelResponse{JobID: jobID, Status: "cancelling", JobRemoved: false}, nil
	default:
		return nil, services.Wrap(services.ErrValidation, "", "cancel",
			fmt.Sprintf("job %s is already %s", jobID, job.Status), nil)
	}
}

func (g *Gateway) lookup(ctx context.Context, userID, jobID string) (*queue.Job, error) {
	job, err := g.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "status",
			fmt.Sprintf("job %s not found", jobID), nil)
	}
	if userID != "" && job.UserID != userID {
		return nil, services.Wrap(services.ErrPermission, "", "status",
			fmt.Sprintf("job %s belongs to another user", jobID), nil)
	}
	return job, nil
}
