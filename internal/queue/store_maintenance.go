package queue

import (
	"context"
	"fmt"
	"time"
)

// UpdateHeartbeat refreshes the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := formatTimestamp(time.Now().UTC())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale releases processing jobs whose worker stopped heartbeating
// before the cutoff back to pending so another worker can pick them up.
// Attempt counts are preserved; the retry budget still applies.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET
            status = ?, worker = NULL, last_heartbeat = NULL,
            stage_progress = 0, progress_message = 'Reclaimed from stalled worker', updated_at = ?
        WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		formatTimestamp(time.Now().UTC()),
		StatusProcessing,
		formatTimestamp(cutoff.UTC()),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// CancelFlaggedPending terminalizes pending jobs carrying a cancel request.
// A processing job whose cancel arrived mid-stage can be released back to
// pending (retry, stale reclaim, shutdown); the claim query skips flagged
// jobs, so this sweep is what actually finishes them.
func (s *Store) CancelFlaggedPending(ctx context.Context) (int64, error) {
	now := formatTimestamp(time.Now().UTC())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, worker = NULL, last_heartbeat = NULL,
            progress_message = 'cancelled by user', updated_at = ?, completed_at = ?
        WHERE status = ? AND cancel_requested = 1`,
		StatusCancelled,
		now,
		now,
		StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel flagged pending jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminal removes completed, failed, and cancelled jobs.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?)`,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to pending with a fresh attempt budget.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := formatTimestamp(time.Now().UTC())
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs SET
                status = ?, attempts = 0, next_attempt_at = NULL, cancel_requested = 0,
                error_code = NULL, error_message = NULL, error_retryable = 0,
                stage_progress = 0, progress_message = 'Retry requested',
                completed_at = NULL, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs SET
            status = ?, attempts = 0, next_attempt_at = NULL, cancel_requested = 0,
            error_code = NULL, error_message = NULL, error_retryable = 0,
            stage_progress = 0, progress_message = 'Retry requested',
            completed_at = NULL, updated_at = ?
        WHERE id IN (` + makePlaceholders(len(ids)) + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// HealthSummary describes aggregated job counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}

// Health summarizes queue volume for status surfaces and probes.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	counts, err := s.CountsByStatus(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	summary := HealthSummary{
		Pending:    counts[StatusPending],
		Processing: counts[StatusProcessing],
		Completed:  counts[StatusCompleted],
		Failed:     counts[StatusFailed],
		Cancelled:  counts[StatusCancelled],
	}
	for _, count := range counts {
		summary.Total += count
	}
	return summary, nil
}
