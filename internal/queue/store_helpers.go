package queue

import (
	"database/sql"
	"strings"
	"time"

	"docforge/internal/tracing"
)

const jobColumns = "id, document_id, user_id, batch_id, tier, status, priority, attempts, max_attempts, next_attempt_at, cancel_requested, worker, last_heartbeat, current_stage, stage_progress, overall_progress, progress_message, settings_json, result_json, error_code, error_message, error_retryable, trace_id, span_id, trace_flags, created_at, updated_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		documentID      string
		userID          string
		batchID         sql.NullString
		tier            string
		statusStr       string
		priority        int64
		attempts        int64
		maxAttempts     int64
		nextAttemptRaw  sql.NullString
		cancelRequested sql.NullInt64
		worker          sql.NullInt64
		heartbeatRaw    sql.NullString
		currentStage    sql.NullString
		stageProgress   sql.NullFloat64
		overallProgress sql.NullFloat64
		progressMessage sql.NullString
		settingsJSON    sql.NullString
		resultJSON      sql.NullString
		errorCode       sql.NullString
		errorMessage    sql.NullString
		errorRetryable  sql.NullInt64
		traceID         sql.NullString
		spanID          sql.NullString
		traceFlags      sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&documentID,
		&userID,
		&batchID,
		&tier,
		&statusStr,
		&priority,
		&attempts,
		&maxAttempts,
		&nextAttemptRaw,
		&cancelRequested,
		&worker,
		&heartbeatRaw,
		&currentStage,
		&stageProgress,
		&overallProgress,
		&progressMessage,
		&settingsJSON,
		&resultJSON,
		&errorCode,
		&errorMessage,
		&errorRetryable,
		&traceID,
		&spanID,
		&traceFlags,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		DocumentID:      documentID,
		UserID:          userID,
		BatchID:         batchID.String,
		Tier:            tier,
		Status:          Status(statusStr),
		Priority:        Priority(priority),
		Attempts:        int(attempts),
		MaxAttempts:     int(maxAttempts),
		CancelRequested: cancelRequested.Int64 != 0,
		CurrentStage:    currentStage.String,
		StageProgress:   stageProgress.Float64,
		OverallProgress: overallProgress.Float64,
		ProgressMessage: progressMessage.String,
		SettingsJSON:    settingsJSON.String,
		ResultJSON:      resultJSON.String,
		ErrorCode:       errorCode.String,
		ErrorMessage:    errorMessage.String,
		ErrorRetryable:  errorRetryable.Int64 != 0,
		Trace: tracing.Context{
			TraceID: traceID.String,
			SpanID:  spanID.String,
			Flags:   traceFlags.String,
		},
		CreatedAt: parseTimestamp(createdRaw),
		UpdatedAt: parseTimestamp(updatedRaw),
	}
	if worker.Valid {
		w := int(worker.Int64)
		job.Worker = &w
	}
	job.NextAttemptAt = parseOptionalTimestamp(nextAttemptRaw)
	job.LastHeartbeat = parseOptionalTimestamp(heartbeatRaw)
	job.CompletedAt = parseOptionalTimestamp(completedRaw)
	return job, nil
}

func parseTimestamp(raw sql.NullString) time.Time {
	if !raw.Valid {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw.String))
	if err != nil {
		return time.Time{}
	}
	return ts
}

func parseOptionalTimestamp(raw sql.NullString) *time.Time {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw.String))
	if err != nil {
		return nil
	}
	return &ts
}

func formatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

func nullableTimestamp(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return formatTimestamp(*ts)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
