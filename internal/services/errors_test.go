package services_test

import (
	"context"
	"errors"
	"testing"

	"docforge/internal/services"
)

func TestClassifyMapsMarkersToCodes(t *testing.T) {
	cases := []struct {
		marker    error
		code      string
		retryable bool
	}{
		{services.ErrValidation, services.CodeValidation, false},
		{services.ErrQuotaExceeded, services.CodeQuotaExceeded, false},
		{services.ErrNotFound, services.CodeNotFound, false},
		{services.ErrPermission, services.CodePermission, false},
		{services.ErrProvider, services.CodeProvider, true},
		{services.ErrTimeout, services.CodeTimeout, true},
		{services.ErrInternal, services.CodeInternal, true},
	}
	for _, tc := range cases {
		err := services.Wrap(tc.marker, "generation", "render", "boom", nil)
		got := services.Classify(err)
		if got.Code != tc.code {
			t.Fatalf("marker %v: code %q, want %q", tc.marker, got.Code, tc.code)
		}
		if got.Retryable != tc.retryable {
			t.Fatalf("marker %v: retryable %v, want %v", tc.marker, got.Retryable, tc.retryable)
		}
		if got.Message == "" {
			t.Fatalf("marker %v: empty message", tc.marker)
		}
	}
}

func TestClassifyTreatsDeadlineAsTimeout(t *testing.T) {
	got := services.Classify(context.DeadlineExceeded)
	if got.Code != services.CodeTimeout || !got.Retryable {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestClassifyNormalizesUnknownErrors(t *testing.T) {
	got := services.Classify(errors.New("string failure from upstream"))
	if got.Code != services.CodeInternal {
		t.Fatalf("expected internal code, got %q", got.Code)
	}
}

func TestAttemptLimit(t *testing.T) {
	if got := services.AttemptLimit(services.Wrap(services.ErrValidation, "", "", "bad", nil), 3); got != 1 {
		t.Fatalf("validation attempt limit = %d, want 1", got)
	}
	if got := services.AttemptLimit(services.Wrap(services.ErrInternal, "", "", "oops", nil), 3); got != 2 {
		t.Fatalf("internal attempt limit = %d, want 2", got)
	}
	if got := services.AttemptLimit(services.Wrap(services.ErrTimeout, "", "", "slow", nil), 3); got != 3 {
		t.Fatalf("timeout attempt limit = %d, want 3", got)
	}
	if got := services.AttemptLimit(services.Wrap(services.ErrProvider, "", "", "503", nil), 5); got != 5 {
		t.Fatalf("provider attempt limit = %d, want 5", got)
	}
}

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("empty context should not carry a job id")
	}
	ctx = services.WithJobID(ctx, "job-42")
	ctx = services.WithStage(ctx, "planning")
	ctx = services.WithWorker(ctx, 2)
	ctx = services.WithCorrelationID(ctx, "corr-7")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-42" {
		t.Fatalf("job id round trip failed: %q %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "planning" {
		t.Fatalf("stage round trip failed: %q %v", stage, ok)
	}
	if worker, ok := services.WorkerFromContext(ctx); !ok || worker != 2 {
		t.Fatalf("worker round trip failed: %d %v", worker, ok)
	}
	if rid, ok := services.CorrelationIDFromContext(ctx); !ok || rid != "corr-7" {
		t.Fatalf("correlation id round trip failed: %q %v", rid, ok)
	}
}
