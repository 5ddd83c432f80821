// Package billing resolves user tiers and enforces enhancement quotas.
// The pipeline reads tier metadata from here but never mutates billing
// state; usage is recorded once per accepted submission.
package billing

import (
	"context"
	"time"

	"docforge/internal/queue"
)

// Plan describes what a subscription tier is entitled to.
type Plan struct {
	Name          string
	Priority      queue.Priority
	BatchLimit    int
	MonthlyQuota  int
	MaxQueueDepth int
}

// UsageRecord captures one accepted enhancement submission.
type UsageRecord struct {
	UserID     string
	JobID      string
	DocumentID string
	Tier       string
	CreatedAt  time.Time
}

// Service is the read-mostly contract the gateway depends on.
type Service interface {
	// Plan resolves tier metadata. Unknown tiers return an error.
	Plan(ctx context.Context, tier string) (Plan, error)
	// Remaining reports how many submissions the user has left in the
	// current period. A negative value means unmetered.
	Remaining(ctx context.Context, userID, tier string) (int, error)
	// Record logs one accepted submission against the user's quota.
	Record(ctx context.Context, rec UsageRecord) error
}
