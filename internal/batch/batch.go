// Package batch owns batch records and their aggregate status. The
// aggregate is a pure function of member job statuses, recomputed on
// every read; the status column on the batch row is only an
// opportunistic cache for listing surfaces.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"docforge/internal/logging"
	"docforge/internal/notifications"
	"docforge/internal/queue"
	"docforge/internal/services"
)

// Aggregate batch statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// Member summarizes one job inside a batch status response.
type Member struct {
	JobID           string       `json:"jobId"`
	DocumentID      string       `json:"documentId"`
	Status          queue.Status `json:"status"`
	CurrentStage    string       `json:"currentStage,omitempty"`
	OverallProgress float64      `json:"overallProgress"`
	ErrorCode       string       `json:"errorCode,omitempty"`
	ErrorMessage    string       `json:"errorMessage,omitempty"`
}

// Status is the full batch view returned to clients.
type Status struct {
	BatchID        string   `json:"batchId"`
	Status         string   `json:"status"`
	Total          int      `json:"total"`
	Completed      int      `json:"completed"`
	Failed         int      `json:"failed"`
	Cancelled      int      `json:"cancelled"`
	OverallPercent float64  `json:"overallPercent"`
	Members        []Member `json:"members"`
}

// Aggregate computes the batch status from member statuses. Cancelled
// members count as failures: the batch cannot fully succeed anymore.
func Aggregate(statuses []queue.Status) string {
	if len(statuses) == 0 {
		return StatusProcessing
	}
	completed, failed := 0, 0
	for _, status := range statuses {
		switch status {
		case queue.StatusCompleted:
			completed++
		case queue.StatusFailed, queue.StatusCancelled:
			failed++
		default:
			return StatusProcessing
		}
	}
	switch {
	case failed == 0:
		return StatusCompleted
	case completed == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Terminal reports whether an aggregate status can never change again.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusPartial || status == StatusFailed
}

// Coordinator resolves batch status and keeps the cached column fresh.
type Coordinator struct {
	store    *queue.Store
	notifier notifications.Service
	logger   *slog.Logger
}

// NewCoordinator wires the coordinator. notifier may be nil.
func NewCoordinator(store *queue.Store, notifier notifications.Service, logger *slog.Logger) *Coordinator {
	if notifier == nil {
		notifier = notifications.NewNop()
	}
	return &Coordinator{
		store:    store,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "batch"),
	}
}

// Get returns the batch with its aggregate recomputed from member jobs.
// The cached status column is refreshed as a side effect; a batch
// finishing for the first time also fires the batch notification.
func (c *Coordinator) Get(ctx context.Context, batchID string) (*Status, error) {
	record, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "batch", fmt.Sprintf("batch %s not found", batchID), nil)
	}

	jobs, err := c.store.JobsForBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	status := buildStatus(batchID, jobs)
	c.refreshCache(ctx, record, status)
	return status, nil
}

func buildStatus(batchID string, jobs []*queue.Job) *Status {
	statuses := make([]queue.Status, 0, len(jobs))
	members := make([]Member, 0, len(jobs))
	completed, failed, cancelled := 0, 0, 0

	for _, job := range jobs {
		statuses = append(statuses, job.Status)
		members = append(members, Member{
			JobID:           job.ID,
			DocumentID:      job.DocumentID,
			Status:          job.Status,
			CurrentStage:    job.CurrentStage,
			OverallProgress: job.OverallProgress,
			ErrorCode:       job.ErrorCode,
			ErrorMessage:    job.ErrorMessage,
		})
		switch job.Status {
		case queue.StatusCompleted:
			completed++
		case queue.StatusFailed:
			failed++
		case queue.StatusCancelled:
			cancelled++
		}
	}

	// Overall percent counts finished members only; partial stage
	// progress is visible per member.
	overall := 0.0
	if len(jobs) > 0 {
		overall = float64(completed) / float64(len(jobs)) * 100
	}
	return &Status{
		BatchID:        batchID,
		Status:         Aggregate(statuses),
		Total:          len(jobs),
		Completed:      completed,
		Failed:         failed,
		Cancelled:      cancelled,
		OverallPercent: overall,
		Members:        members,
	}
}

// refreshCache writes the recomputed aggregate back and notifies once
// when the batch first reaches a terminal state. Cache failures are
// logged and otherwise ignored; the recomputed value is authoritative.
func (c *Coordinator) refreshCache(ctx context.Context, record *queue.Batch, status *Status) {
	if record.Status == status.Status {
		return
	}
	if err := c.store.UpdateBatchStatus(ctx, record.ID, status.Status); err != nil {
		c.logger.Warn("batch status cache update failed",
			logging.String(logging.FieldBatchID, record.ID),
			logging.Error(err))
		return
	}
	if Terminal(status.Status) && !Terminal(record.Status) {
		if err := c.notifier.NotifyBatchFinished(ctx, record.ID, status.Status, status.Completed, status.Failed+status.Cancelled); err != nil {
			c.logger.Warn("batch notification not delivered",
				logging.String(logging.FieldBatchID, record.ID),
				logging.Error(err))
		}
		c.logger.Info("batch finished",
			logging.String(logging.FieldBatchID, record.ID),
			logging.String("aggregate", status.Status),
			logging.Int("completed", status.Completed),
			logging.Int("failed", status.Failed+status.Cancelled))
	}
}
