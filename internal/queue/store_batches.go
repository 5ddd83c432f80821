package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewBatch inserts a batch record. Member jobs reference it via their batch_id.
func (s *Store) NewBatch(ctx context.Context, id, userID, tier string, tierLimit int) (*Batch, error) {
	if id == "" {
		return nil, errors.New("batch id is required")
	}
	timestamp := formatTimestamp(time.Now().UTC())
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO batches (id, user_id, tier, tier_limit, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		userID,
		tier,
		tierLimit,
		"processing",
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}
	return s.GetBatch(ctx, id)
}

// GetBatch fetches a batch by identifier. Returns nil when absent.
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, tier, tier_limit, status, created_at, updated_at FROM batches WHERE id = ?`,
		id,
	)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

// JobsForBatch returns a batch's member jobs in insertion order.
func (s *Store) JobsForBatch(ctx context.Context, batchID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE batch_id = ? ORDER BY created_at, id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateBatchStatus refreshes the cached aggregate status. Read paths always
// recompute from member statuses; this cache only feeds listing surfaces.
func (s *Store) UpdateBatchStatus(ctx context.Context, id, status string) error {
	return s.execWithoutResultRetry(
		ctx,
		`UPDATE batches SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		formatTimestamp(time.Now().UTC()),
		id,
	)
}

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		id         string
		userID     string
		tier       string
		tierLimit  int64
		status     sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &userID, &tier, &tierLimit, &status, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	return &Batch{
		ID:        id,
		UserID:    userID,
		Tier:      tier,
		TierLimit: int(tierLimit),
		Status:    status.String,
		CreatedAt: parseTimestamp(createdRaw),
		UpdatedAt: parseTimestamp(updatedRaw),
	}, nil
}
