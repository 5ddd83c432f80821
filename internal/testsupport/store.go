package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"docforge/internal/config"
	"docforge/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a pending job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, userID, tier, documentID string) *queue.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), queue.NewJobParams{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		UserID:      userID,
		Tier:        tier,
		Priority:    queue.PriorityNormal,
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
