package batch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"docforge/internal/queue"
	"docforge/internal/services"
)

func TestAggregate(t *testing.T) {
	cases := []struct {
		name     string
		statuses []queue.Status
		want     string
	}{
		{"all pending", []queue.Status{queue.StatusPending, queue.StatusPending}, StatusProcessing},
		{"one active", []queue.Status{queue.StatusCompleted, queue.StatusProcessing}, StatusProcessing},
		{"all completed", []queue.Status{queue.StatusCompleted, queue.StatusCompleted}, StatusCompleted},
		{"all failed", []queue.Status{queue.StatusFailed, queue.StatusFailed}, StatusFailed},
		{"mixed terminal", []queue.Status{queue.StatusCompleted, queue.StatusFailed}, StatusPartial},
		{"cancelled counts as failure", []queue.Status{queue.StatusCompleted, queue.StatusCancelled}, StatusPartial},
		{"all cancelled", []queue.Status{queue.StatusCancelled}, StatusFailed},
		{"empty batch", nil, StatusProcessing},
	}
	for _, tc := range cases {
		if got := Aggregate(tc.statuses); got != tc.want {
			t.Errorf("%s: aggregate = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func newStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedBatch(t *testing.T, store *queue.Store, memberStatuses []queue.Status) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.NewBatch(ctx, "b1", "user-1", "pro", 5); err != nil {
		t.Fatalf("new batch: %v", err)
	}
	for i, status := range memberStatuses {
		job, err := store.NewJob(ctx, queue.NewJobParams{
			ID:         string(rune('a' + i)),
			DocumentID: "doc",
			UserID:     "user-1",
			BatchID:    "b1",
			Tier:       "pro",
		})
		if err != nil {
			t.Fatalf("new job: %v", err)
		}
		if status != queue.StatusPending {
			job.Status = status
			if status == queue.StatusCompleted {
				job.OverallProgress = 100
			}
			if err := store.Update(ctx, job); err != nil {
				t.Fatalf("update job: %v", err)
			}
		}
	}
}

func TestGetRecomputesAggregate(t *testing.T) {
	store := newStore(t)
	seedBatch(t, store, []queue.Status{queue.StatusCompleted, queue.StatusFailed, queue.StatusCompleted})

	coord := NewCoordinator(store, nil, nil)
	status, err := coord.Get(context.Background(), "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if status.Status != StatusPartial {
		t.Fatalf("aggregate = %q, want partial", status.Status)
	}
	if status.Total != 3 || status.Completed != 2 || status.Failed != 1 {
		t.Fatalf("counts = %+v", status)
	}
	if len(status.Members) != 3 {
		t.Fatalf("members = %d", len(status.Members))
	}

	// The cache column now reflects the recomputed aggregate.
	record, err := store.GetBatch(context.Background(), "b1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if record.Status != StatusPartial {
		t.Fatalf("cached status = %q", record.Status)
	}
}

func TestGetOverallPercentCountsCompletedMembers(t *testing.T) {
	store := newStore(t)
	seedBatch(t, store, []queue.Status{queue.StatusCompleted, queue.StatusProcessing})

	// Mid-stage progress on the processing member must not move the
	// batch percent; only finished members count.
	job, err := store.GetJob(context.Background(), "b")
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	job.OverallProgress = 60
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("update member: %v", err)
	}

	coord := NewCoordinator(store, nil, nil)
	status, err := coord.Get(context.Background(), "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if status.Status != StatusProcessing {
		t.Fatalf("aggregate = %q, want processing", status.Status)
	}
	if status.OverallPercent != 50 {
		t.Fatalf("overall percent = %v, want 50", status.OverallPercent)
	}
}

func TestGetUnknownBatch(t *testing.T) {
	store := newStore(t)
	coord := NewCoordinator(store, nil, nil)
	if _, err := coord.Get(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not-found marker", err)
	}
}
