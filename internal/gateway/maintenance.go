package gateway

import (
	"context"
	"fmt"

	"docforge/internal/logging"
	"docforge/internal/queue"
	"docforge/internal/services"
)

// RetryResponse reports a failed job returned to the pending queue.
type RetryResponse struct {
	JobID                string `json:"jobId"`
	Status               string `json:"status"`
	QueuePosition        int    `json:"queuePosition"`
	EstimatedWaitSeconds int    `json:"estimatedWaitSeconds"`
}

// ClearResponse reports how many terminal jobs were removed.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

// Retry moves a failed job back to pending with a fresh attempt budget.
// Only failed jobs qualify; anything else is a validation error.
func (g *Gateway) Retry(ctx context.Context, userID, jobID string) (*RetryResponse, error) {
	job, err := g.lookup(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != queue.StatusFailed {
		return nil, services.Wrap(services.ErrValidation, "", "retry",
			fmt.Sprintf("job %s is %s, only failed jobs can be retried", jobID, job.Status), nil)
	}

	updated, err := g.store.RetryFailed(ctx, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "", "retry", "retry job", err)
	}
	if updated == 0 {
		// The job left the failed state between the read and the update.
		return nil, services.Wrap(services.ErrValidation, "", "retry",
			fmt.Sprintf("job %s is no longer failed", jobID), nil)
	}

	resp := &RetryResponse{JobID: jobID, Status: string(queue.StatusPending)}
	if refreshed, err := g.store.GetJob(ctx, jobID); err == nil && refreshed != nil {
		if rank, err := g.store.Rank(ctx, refreshed); err == nil {
			resp.QueuePosition = rank + 1
			resp.EstimatedWaitSeconds = g.estimateWait(rank)
		}
	}
	return resp, nil
}

// ClearTerminal removes completed, failed, and cancelled jobs from the
// queue. Intended for operators; callers are already past auth.
func (g *Gateway) ClearTerminal(ctx context.Context) (*ClearResponse, error) {
	removed, err := g.store.ClearTerminal(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "", "clear", "clear terminal jobs", err)
	}
	g.logger.Info("cleared terminal jobs", logging.Int64("removed", removed))
	return &ClearResponse{Removed: removed}, nil
}
