package queue_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"docforge/internal/queue"
	"docforge/internal/tracing"
)

func newStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newJob(t *testing.T, store *queue.Store, id string, priority queue.Priority) *queue.Job {
	t.Helper()
	job, err := store.NewJob(context.Background(), queue.NewJobParams{
		ID:         id,
		DocumentID: "doc-" + id,
		UserID:     "user-1",
		Tier:       "free",
		Priority:   priority,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return job
}

func TestNewJobDefaults(t *testing.T) {
	store := newStore(t)
	job := newJob(t, store, "a", 0)

	if job.Status != queue.StatusPending {
		t.Fatalf("status = %q, want pending", job.Status)
	}
	if job.Priority != queue.PriorityNormal {
		t.Fatalf("priority = %v, want normal", job.Priority)
	}
	if job.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", job.MaxAttempts)
	}
	if job.OverallProgress != 0 {
		t.Fatalf("progress = %v, want 0", job.OverallProgress)
	}
}

func TestClaimHonorsPriorityThenFIFO(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	newJob(t, store, "low", queue.PriorityLow)
	newJob(t, store, "normal-1", queue.PriorityNormal)
	newJob(t, store, "normal-2", queue.PriorityNormal)
	newJob(t, store, "high", queue.PriorityHigh)

	want := []string{"high", "normal-1", "normal-2", "low"}
	for i, expected := range want {
		job, err := store.Claim(ctx, i)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if job == nil || job.ID != expected {
			t.Fatalf("claim %d = %+v, want id %q", i, job, expected)
		}
		if job.Status != queue.StatusProcessing {
			t.Fatalf("claimed status = %q, want processing", job.Status)
		}
	}

	job, err := store.Claim(ctx, 99)
	if err != nil {
		t.Fatalf("claim empty: %v", err)
	}
	if job != nil {
		t.Fatalf("expected empty queue, got %+v", job)
	}
}

func TestClaimSkipsBackoffWindow(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job := newJob(t, store, "delayed", queue.PriorityHigh)
	claimed, err := store.Claim(ctx, 0)
	if err != nil || claimed == nil || claimed.ID != job.ID {
		t.Fatalf("initial claim: %v %+v", err, claimed)
	}

	if err := store.ScheduleRetry(ctx, claimed, time.Hour); err != nil {
		t.Fatalf("schedule retry: %v", err)
	}

	if got, err := store.Claim(ctx, 1); err != nil || got != nil {
		t.Fatalf("expected backoff window to block claim, got %+v err=%v", got, err)
	}

	// Collapse the window and confirm the job becomes claimable again.
	claimed.NextAttemptAt = nil
	claimed.Status = queue.StatusPending
	if err := store.Update(ctx, claimed); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.Claim(ctx, 1)
	if err != nil || got == nil || got.ID != job.ID {
		t.Fatalf("claim after window: %v %+v", err, got)
	}
}

func TestClaimSkipsCancelledJobs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job := newJob(t, store, "doomed", queue.PriorityHigh)
	removed, err := store.CancelPending(ctx, job.ID)
	if err != nil || !removed {
		t.Fatalf("cancel pending: %v removed=%v", err, removed)
	}

	got, err := store.Claim(ctx, 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got != nil {
		t.Fatalf("cancelled job should not be claimable, got %+v", got)
	}

	reloaded, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Status != queue.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", reloaded.Status)
	}
}

func TestCancelPendingFailsOnceClaimed(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job := newJob(t, store, "running", queue.PriorityNormal)
	if _, err := store.Claim(ctx, 0); err != nil {
		t.Fatalf("claim: %v", err)
	}

	removed, err := store.CancelPending(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if removed {
		t.Fatal("claimed job must not be cancellable via pending path")
	}

	flagged, err := store.RequestCancel(ctx, job.ID)
	if err != nil || !flagged {
		t.Fatalf("request cancel: %v flagged=%v", err, flagged)
	}

	reloaded, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reloaded.CancelRequested {
		t.Fatal("expected cooperative cancel flag")
	}
	if reloaded.Status != queue.StatusProcessing {
		t.Fatalf("status = %q, want processing until stage boundary", reloaded.Status)
	}
}

func TestRankCountsJobsAhead(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	newJob(t, store, "high", queue.PriorityHigh)
	first := newJob(t, store, "normal-1", queue.PriorityNormal)
	second := newJob(t, store, "normal-2", queue.PriorityNormal)

	if rank, err := store.Rank(ctx, first); err != nil || rank != 1 {
		t.Fatalf("rank(normal-1) = %d err=%v, want 1", rank, err)
	}
	if rank, err := store.Rank(ctx, second); err != nil || rank != 2 {
		t.Fatalf("rank(normal-2) = %d err=%v, want 2", rank, err)
	}
}

func TestTraceContextRoundTrips(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, err := store.NewJob(ctx, queue.NewJobParams{
		ID:         "traced",
		DocumentID: "doc",
		UserID:     "user",
		Tier:       "pro",
		Priority:   queue.PriorityHigh,
		Trace: tracing.Context{
			TraceID: "4bf92f3577b34da6a3ce929d0e0e4736",
			SpanID:  "00f067aa0ba902b7",
			Flags:   "01",
		},
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	reloaded, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Trace.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" || reloaded.Trace.SpanID != "00f067aa0ba902b7" {
		t.Fatalf("trace fields lost: %+v", reloaded.Trace)
	}
}

func TestReclaimStaleReleasesJob(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	newJob(t, store, "stale", queue.PriorityNormal)
	if _, err := store.Claim(ctx, 0); err != nil {
		t.Fatalf("claim: %v", err)
	}

	reclaimed, err := store.ReclaimStale(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}

	job, err := store.GetJob(ctx, "stale")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != queue.StatusPending || job.Worker != nil {
		t.Fatalf("expected released job, got %+v", job)
	}
}

func TestBatchMembership(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	batch, err := store.NewBatch(ctx, "batch-1", "user-1", "pro", 5)
	if err != nil {
		t.Fatalf("new batch: %v", err)
	}
	if batch.TierLimit != 5 {
		t.Fatalf("tier limit = %d, want 5", batch.TierLimit)
	}

	for _, id := range []string{"m1", "m2"} {
		if _, err := store.NewJob(ctx, queue.NewJobParams{
			ID:         id,
			DocumentID: "doc-" + id,
			UserID:     "user-1",
			BatchID:    "batch-1",
			Tier:       "pro",
		}); err != nil {
			t.Fatalf("new member %s: %v", id, err)
		}
	}

	members, err := store.JobsForBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("jobs for batch: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
}

func TestPendingDepthForTier(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	newJob(t, store, "f1", queue.PriorityLow)
	newJob(t, store, "f2", queue.PriorityLow)

	depth, err := store.PendingDepthForTier(ctx, "free")
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 2 {
		t.Fatalf("depth = %d, want 2", depth)
	}
}

func TestRetryFailedResetsJob(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job := newJob(t, store, "r1", queue.PriorityNormal)
	job.Status = queue.StatusFailed
	job.Attempts = 3
	job.ErrorCode = "PROVIDER"
	job.ErrorMessage = "upstream unavailable"
	job.ErrorRetryable = true
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	updated, err := store.RetryFailed(ctx, "r1")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, want 1", updated)
	}

	refreshed, err := store.GetJob(ctx, "r1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if refreshed.Status != queue.StatusPending {
		t.Fatalf("status = %q, want pending", refreshed.Status)
	}
	if refreshed.Attempts != 0 || refreshed.ErrorCode != "" {
		t.Fatalf("attempts = %d, error code = %q; want a clean slate", refreshed.Attempts, refreshed.ErrorCode)
	}

	// A pending job must not be touched.
	if updated, err := store.RetryFailed(ctx, "r1"); err != nil || updated != 0 {
		t.Fatalf("retry on pending job = (%d, %v), want (0, nil)", updated, err)
	}
}

func TestClearTerminalKeepsLiveJobs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	live := newJob(t, store, "live", queue.PriorityNormal)
	done := newJob(t, store, "done", queue.PriorityNormal)
	done.Status = queue.StatusCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("complete job: %v", err)
	}

	removed, err := store.ClearTerminal(ctx)
	if err != nil {
		t.Fatalf("clear terminal: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if job, err := store.GetJob(ctx, live.ID); err != nil || job == nil {
		t.Fatalf("live job should survive: job=%v err=%v", job, err)
	}
	if job, err := store.GetJob(ctx, done.ID); err != nil || job != nil {
		t.Fatalf("terminal job should be gone: job=%v err=%v", job, err)
	}
}
