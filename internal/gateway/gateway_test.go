package gateway_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"docforge/internal/batch"
	"docforge/internal/billing"
	"docforge/internal/config"
	"docforge/internal/gateway"
	"docforge/internal/health"
	"docforge/internal/queue"
	"docforge/internal/services"
	"docforge/internal/testsupport"
	"docforge/internal/tracing"
)

type staticAdmission struct {
	report health.Report
}

func (a staticAdmission) Last() health.Report { return a.report }

type env struct {
	cfg     *config.Config
	store   *queue.Store
	billing *billing.Static
	gateway *gateway.Gateway
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	bill := billing.NewStatic(nil)
	coordinator := batch.NewCoordinator(store, nil, nil)
	gw := gateway.New(cfg, store, bill, coordinator,
		staticAdmission{health.Report{Status: health.StatusHealthy}}, nil)
	return &env{cfg: cfg, store: store, billing: bill, gateway: gw}
}

func submitReq(docID string) gateway.SubmitRequest {
	return gateway.SubmitRequest{
		UserID:     "user-1",
		Tier:       "free",
		DocumentID: docID,
	}
}

func TestSubmitAcceptsAndQueues(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.gateway.Submit(ctx, submitReq("doc-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("expected a job id")
	}
	if resp.QueuePosition != 1 {
		t.Fatalf("queue position = %d, want 1", resp.QueuePosition)
	}
	if resp.EstimatedWaitSeconds != 0 {
		t.Fatalf("estimated wait = %d, want 0 for the head of the queue", resp.EstimatedWaitSeconds)
	}

	job, err := e.store.GetJob(ctx, resp.JobID)
	if err != nil || job == nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.Priority != queue.PriorityLow {
		t.Fatalf("priority = %s, want low for free tier", job.Priority)
	}
	if job.Trace.TraceID == "" {
		t.Fatal("expected a recorded trace context")
	}
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  gateway.SubmitRequest
	}{
		{"missing user", gateway.SubmitRequest{Tier: "free", DocumentID: "d"}},
		{"missing document", gateway.SubmitRequest{UserID: "u", Tier: "free"}},
		{"bad settings", gateway.SubmitRequest{UserID: "u", Tier: "free", DocumentID: "d", SettingsJSON: "{nope"}},
		{"bad hint", gateway.SubmitRequest{UserID: "u", Tier: "free", DocumentID: "d", PriorityHint: "urgent"}},
		{"bad upload trace", gateway.SubmitRequest{
			UserID: "u", Tier: "free", DocumentID: "d",
			UploadTrace: tracing.Context{TraceID: "not-hex", SpanID: "nope"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.gateway.Submit(ctx, tc.req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("error = %v, want validation marker", err)
			}
		})
	}

	counts, err := e.store.CountsByStatus(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	for status, n := range counts {
		if n != 0 {
			t.Fatalf("validation rejects must not create jobs, found %d %s", n, status)
		}
	}
}

func TestSubmitRejectsWhenUnhealthy(t *testing.T) {
	e := newEnv(t)
	coordinator := batch.NewCoordinator(e.store, nil, nil)
	gw := gateway.New(e.cfg, e.store, e.billing, coordinator,
		staticAdmission{health.Report{Status: health.StatusUnhealthy}}, nil)

	_, err := gw.Submit(context.Background(), submitReq("doc-1"))
	if !errors.Is(err, gateway.ErrUnhealthy) {
		t.Fatalf("error = %v, want unhealthy rejection", err)
	}
}

func TestSubmitEnforcesQuota(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Free tier allows 10 submissions per month.
	for i := 0; i < 10; i++ {
		if _, err := e.gateway.Submit(ctx, submitReq("doc")); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}
	_, err := e.gateway.Submit(ctx, submitReq("doc"))
	if !errors.Is(err, services.ErrQuotaExceeded) {
		t.Fatalf("error = %v, want quota marker", err)
	}
}

func TestSubmitAppliesBackpressure(t *testing.T) {
	e := newEnv(t)
	e.cfg.Queue.MaxDepthPerTier = 2
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := e.gateway.Submit(ctx, submitReq("doc")); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}
	_, err := e.gateway.Submit(ctx, submitReq("doc"))
	if !errors.Is(err, gateway.ErrBackpressure) {
		t.Fatalf("error = %v, want backpressure rejection", err)
	}
}

func TestPriorityHintNeverPromotes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := submitReq("doc-1")
	req.PriorityHint = "high"
	resp, err := e.gateway.Submit(ctx, req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job, _ := e.store.GetJob(ctx, resp.JobID)
	if job.Priority != queue.PriorityLow {
		t.Fatalf("priority = %s, free tier must stay low", job.Priority)
	}

	req = gateway.SubmitRequest{UserID: "user-1", Tier: "premium", DocumentID: "doc-2", PriorityHint: "low"}
	resp, err = e.gateway.Submit(ctx, req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job, _ = e.store.GetJob(ctx, resp.JobID)
	if job.Priority != queue.PriorityLow {
		t.Fatalf("priority = %s, demoting hint should apply", job.Priority)
	}
}

func TestBatchSizeRejectionHasNoSideEffects(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.gateway.SubmitBatch(ctx, gateway.BatchRequest{
		UserID:      "user-1",
		Tier:        "free",
		DocumentIDs: []string{"a", "b", "c"},
	})
	if !errors.Is(err, gateway.ErrBatchTooLarge) {
		t.Fatalf("error = %v, want batch size rejection", err)
	}

	counts, _ := e.store.CountsByStatus(ctx)
	for status, n := range counts {
		if n != 0 {
			t.Fatalf("rejected batch created %d %s jobs", n, status)
		}
	}
	if remaining, _ := e.billing.Remaining(ctx, "user-1", "free"); remaining != 10 {
		t.Fatalf("remaining = %d, rejection must not burn quota", remaining)
	}
}

func TestBatchSubmitsAllMembers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.gateway.SubmitBatch(ctx, gateway.BatchRequest{
		UserID:      "user-1",
		Tier:        "premium",
		DocumentIDs: []string{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(resp.Items))
	}
	for _, item := range resp.Items {
		if !item.Accepted {
			t.Fatalf("member %s rejected: %s", item.DocumentID, item.Reason)
		}
	}

	jobs, err := e.store.JobsForBatch(ctx, resp.BatchID)
	if err != nil {
		t.Fatalf("jobs for batch: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("persisted members = %d, want 3", len(jobs))
	}

	status, err := e.gateway.GetBatchStatus(ctx, "user-1", resp.BatchID)
	if err != nil {
		t.Fatalf("batch status: %v", err)
	}
	if status.Status != batch.StatusProcessing {
		t.Fatalf("aggregate = %s, want processing", status.Status)
	}
}

func TestCancelPendingRemovesJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.gateway.Submit(ctx, submitReq("doc-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	cancel, err := e.gateway.Cancel(ctx, "user-1", resp.JobID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancel.JobRemoved || cancel.Status != string(queue.StatusCancelled) {
		t.Fatalf("cancel = %+v, want immediate removal", cancel)
	}

	job, _ := e.store.GetJob(ctx, resp.JobID)
	if job.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", job.Status)
	}
}

func TestCancelClaimedJobIsCooperative(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.gateway.Submit(ctx, submitReq("doc-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.store.Claim(ctx, 0); err != nil {
		t.Fatalf("claim: %v", err)
	}

	cancel, err := e.gateway.Cancel(ctx, "user-1", resp.JobID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancel.JobRemoved || cancel.Status != "cancelling" {
		t.Fatalf("cancel = %+v, want cooperative flag", cancel)
	}

	job, _ := e.store.GetJob(ctx, resp.JobID)
	if !job.CancelRequested {
		t.Fatal("cancel flag not set")
	}
	if job.Status != queue.StatusProcessing {
		t.Fatalf("status = %s, claimed job must stay processing", job.Status)
	}
}

func TestStatusEnforcesOwnership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.gateway.Submit(ctx, submitReq("doc-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := e.gateway.GetStatus(ctx, "user-2", resp.JobID); !errors.Is(err, services.ErrPermission) {
		t.Fatalf("error = %v, want permission marker", err)
	}
	if _, err := e.gateway.GetStatus(ctx, "user-1", "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("error = %v, want not-found marker", err)
	}

	status, err := e.gateway.GetStatus(ctx, "user-1", resp.JobID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != queue.StatusPending || status.QueuePosition != 1 {
		t.Fatalf("status = %+v, want pending at position 1", status)
	}
}

func TestRetryRequeuesFailedJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.gateway.Submit(ctx, submitReq("doc-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job, err := e.store.GetJob(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	job.Status = queue.StatusFailed
	job.Attempts = 3
	job.ErrorCode = services.CodeProvider
	if err := e.store.Update(ctx, job); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	retried, err := e.gateway.Retry(ctx, "user-1", resp.JobID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != string(queue.StatusPending) || retried.QueuePosition != 1 {
		t.Fatalf("retry response = %+v", retried)
	}

	// A second retry is a validation error because the job is pending again.
	if _, err := e.gateway.Retry(ctx, "user-1", resp.JobID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("retry on pending job = %v, want validation error", err)
	}
	// Other users cannot retry the job.
	if _, err := e.gateway.Retry(ctx, "user-2", resp.JobID); !errors.Is(err, services.ErrPermission) {
		t.Fatalf("cross-user retry = %v, want permission error", err)
	}
}

func TestClearTerminalReportsRemovals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.gateway.Submit(ctx, submitReq("doc-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.gateway.Cancel(ctx, "user-1", resp.JobID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	cleared, err := e.gateway.ClearTerminal(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared.Removed != 1 {
		t.Fatalf("removed = %d, want 1", cleared.Removed)
	}
}
