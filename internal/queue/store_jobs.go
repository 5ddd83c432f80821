package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docforge/internal/tracing"
)

// NewJobParams captures everything the gateway persists at submission time.
type NewJobParams struct {
	ID           string
	DocumentID   string
	UserID       string
	BatchID      string
	Tier         string
	Priority     Priority
	MaxAttempts  int
	SettingsJSON string
	Trace        tracing.Context
}

// NewJob inserts a pending job and returns the persisted record.
func (s *Store) NewJob(ctx context.Context, params NewJobParams) (*Job, error) {
	if params.ID == "" {
		return nil, errors.New("job id is required")
	}
	if params.Priority == 0 {
		params.Priority = PriorityNormal
	}
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = 3
	}
	timestamp := formatTimestamp(time.Now().UTC())

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, document_id, user_id, batch_id, tier, status, priority,
            attempts, max_attempts, settings_json,
            trace_id, span_id, trace_flags, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.ID,
		params.DocumentID,
		params.UserID,
		nullableString(params.BatchID),
		params.Tier,
		StatusPending,
		int(params.Priority),
		0,
		params.MaxAttempts,
		nullableString(params.SettingsJSON),
		nullableString(params.Trace.TraceID),
		nullableString(params.Trace.SpanID),
		nullableString(params.Trace.Flags),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetJob(ctx, params.ID)
}

// GetJob fetches a job by identifier. Returns nil when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists the mutable fields of a job. The executor owns the job it
// claimed, so no status guard is applied here; cross-actor transitions go
// through the dedicated guarded methods below. The cancel_requested flag is
// deliberately excluded: it belongs to the cancel operations, and writing it
// here would let an executor update race a concurrent cancel request.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()

	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET
            status = ?, priority = ?, attempts = ?, max_attempts = ?,
            next_attempt_at = ?, worker = ?, last_heartbeat = ?,
            current_stage = ?, stage_progress = ?, overall_progress = ?, progress_message = ?,
            settings_json = ?, result_json = ?,
            error_code = ?, error_message = ?, error_retryable = ?,
            updated_at = ?, completed_at = ?
        WHERE id = ?`,
		job.Status,
		int(job.Priority),
		job.Attempts,
		job.MaxAttempts,
		nullableTimestamp(job.NextAttemptAt),
		nullableInt(job.Worker),
		nullableTimestamp(job.LastHeartbeat),
		nullableString(job.CurrentStage),
		job.StageProgress,
		job.OverallProgress,
		nullableString(job.ProgressMessage),
		nullableString(job.SettingsJSON),
		nullableString(job.ResultJSON),
		nullableString(job.ErrorCode),
		nullableString(job.ErrorMessage),
		boolToInt(job.ErrorRetryable),
		formatTimestamp(job.UpdatedAt),
		nullableTimestamp(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// Claim atomically assigns the next eligible pending job to a worker. Jobs are
// ordered by priority class then insertion order; items whose backoff window
// has not elapsed are skipped. Returns nil when nothing is claimable.
func (s *Store) Claim(ctx context.Context, worker int) (*Job, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET
            status = ?, worker = ?, last_heartbeat = ?, updated_at = ?
        WHERE id = (
            SELECT id FROM jobs
            WHERE status = ? AND cancel_requested = 0
              AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
            ORDER BY priority, created_at, id
            LIMIT 1
        ) AND status = ?`,
		StatusProcessing,
		worker,
		formatTimestamp(now),
		formatTimestamp(now),
		StatusPending,
		formatTimestamp(now),
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	// A worker holds at most one processing job, so this lookup is unambiguous.
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE worker = ? AND status = ? LIMIT 1`,
		worker,
		StatusProcessing,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load claimed job: %w", err)
	}
	return job, nil
}

// ScheduleRetry releases a claimed job back to pending with a backoff window.
func (s *Store) ScheduleRetry(ctx context.Context, job *Job, delay time.Duration) error {
	if job == nil {
		return errors.New("job is nil")
	}
	next := time.Now().UTC().Add(delay)
	job.Status = StatusPending
	job.NextAttemptAt = &next
	job.Worker = nil
	job.LastHeartbeat = nil
	job.StageProgress = 0
	return s.Update(ctx, job)
}

// CancelPending cancels a job that has not been claimed yet. Returns true when
// the job was still pending and is now terminal cancelled.
func (s *Store) CancelPending(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, cancel_requested = 1, updated_at = ?, completed_at = ?
        WHERE id = ? AND status = ?`,
		StatusCancelled,
		formatTimestamp(now),
		formatTimestamp(now),
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("cancel pending job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RequestCancel sets the cooperative cancellation flag on a claimed job. The
// executor honors it at the next stage boundary. Returns true when the job was
// processing and the flag is now set.
func (s *Store) RequestCancel(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
		formatTimestamp(time.Now().UTC()),
		id,
		StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Rank returns the number of pending jobs scheduled ahead of the given job,
// i.e. a zero-based queue position.
func (s *Store) Rank(ctx context.Context, job *Job) (int, error) {
	if job == nil {
		return 0, errors.New("job is nil")
	}
	var rank int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM jobs
        WHERE status = ?
          AND (priority < ?
               OR (priority = ? AND created_at < ?)
               OR (priority = ? AND created_at = ? AND id < ?))`,
		StatusPending,
		int(job.Priority),
		int(job.Priority), formatTimestamp(job.CreatedAt),
		int(job.Priority), formatTimestamp(job.CreatedAt), job.ID,
	).Scan(&rank)
	if err != nil {
		return 0, fmt.Errorf("compute rank: %w", err)
	}
	return rank, nil
}

// PendingDepthForTier counts pending jobs for a tier, used for backpressure.
func (s *Store) PendingDepthForTier(ctx context.Context, tier string) (int, error) {
	var depth int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM jobs WHERE status = ? AND tier = ?`,
		StatusPending,
		tier,
	).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("tier depth: %w", err)
	}
	return depth, nil
}

// CountsByStatus returns job totals keyed by lifecycle status.
func (s *Store) CountsByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int, len(allStatuses))
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

// List returns jobs matching the provided statuses, newest first. With no
// statuses it returns everything.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// JobsForUser returns a user's jobs, newest first.
func (s *Store) JobsForUser(ctx context.Context, userID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
