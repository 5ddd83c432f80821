package enhance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docforge/internal/assets"
	"docforge/internal/provider"
	"docforge/internal/queue"
	"docforge/internal/services"
)

func newBlobs(t *testing.T) assets.Store {
	t.Helper()
	store, err := assets.NewFilesystem(t.TempDir(), "https://assets.test")
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	return store
}

func uploadSource(t *testing.T, blobs assets.Store, job *queue.Job) {
	t.Helper()
	if _, err := blobs.Put(context.Background(), sourceKey(job), strings.NewReader("original document")); err != nil {
		t.Fatalf("seed source: %v", err)
	}
}

func testJob() *queue.Job {
	return &queue.Job{
		ID:           "job-1",
		DocumentID:   "doc-1",
		UserID:       "user-1",
		SettingsJSON: `{"style":"modern","includeGraphics":true}`,
	}
}

func TestUploadConfirmRequiresSource(t *testing.T) {
	blobs := newBlobs(t)
	handler := NewUploadConfirm(provider.NewStub(), blobs, nil)
	job := testJob()
	ctx := context.Background()

	if err := handler.Execute(ctx, job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing source error = %v, want validation marker", err)
	}

	uploadSource(t, blobs, job)
	if err := handler.Prepare(ctx, job); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := handler.Execute(ctx, job); err != nil {
		t.Fatalf("execute with source: %v", err)
	}
}

func TestStagesRunInSequence(t *testing.T) {
	blobs := newBlobs(t)
	stub := provider.NewStub()
	job := testJob()
	uploadSource(t, blobs, job)
	ctx := context.Background()

	handlers := []interface {
		Prepare(context.Context, *queue.Job) error
		Execute(context.Context, *queue.Job) error
	}{
		NewUploadConfirm(stub, blobs, nil),
		NewAnalyzer(stub, blobs, nil),
		NewPlanner(stub, blobs, nil),
		NewGenerator(stub, blobs, nil),
		NewComposer(stub, blobs, nil),
	}
	for i, handler := range handlers {
		if err := handler.Prepare(ctx, job); err != nil {
			t.Fatalf("prepare stage %d: %v", i, err)
		}
		if err := handler.Execute(ctx, job); err != nil {
			t.Fatalf("execute stage %d: %v", i, err)
		}
	}

	result, err := DecodeResult(job.ResultJSON)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.EnhancedURL == "" {
		t.Fatal("result missing enhanced URL")
	}
	if result.QualityScoreAfter <= result.QualityScoreBefore {
		t.Fatalf("quality did not improve: %+v", result)
	}
	if len(result.Improvements) == 0 {
		t.Fatal("result missing improvements")
	}

	// Final document must be readable from the asset store.
	reader, err := blobs.Get(ctx, artifactKey(job, enhancedArtifact))
	if err != nil {
		t.Fatalf("get enhanced: %v", err)
	}
	_ = reader.Close()
}

func TestPlannerRequiresAnalysisArtifact(t *testing.T) {
	blobs := newBlobs(t)
	handler := NewPlanner(provider.NewStub(), blobs, nil)
	job := testJob()

	if err := handler.Execute(context.Background(), job); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing artifact error = %v, want not-found marker", err)
	}
}

func TestGeneratorPropagatesProviderFailure(t *testing.T) {
	blobs := newBlobs(t)
	stub := provider.NewStub()
	stub.Fail = func(op string, _ provider.Request) error {
		if op == "generate" {
			return services.Wrap(services.ErrProvider, "generation", "generate", "upstream overloaded", nil)
		}
		return nil
	}
	job := testJob()
	uploadSource(t, blobs, job)
	ctx := context.Background()

	analyzer := NewAnalyzer(stub, blobs, nil)
	if err := analyzer.Execute(ctx, job); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	planner := NewPlanner(stub, blobs, nil)
	if err := planner.Execute(ctx, job); err != nil {
		t.Fatalf("plan: %v", err)
	}

	generator := NewGenerator(stub, blobs, nil)
	if err := generator.Execute(ctx, job); !errors.Is(err, services.ErrProvider) {
		t.Fatalf("generate error = %v, want provider marker", err)
	}
}

func TestProgressReportingReachesSink(t *testing.T) {
	blobs := newBlobs(t)
	job := testJob()
	uploadSource(t, blobs, job)

	handler := NewUploadConfirm(provider.NewStub(), blobs, nil)
	var percents []float64
	handler.SetProgressFunc(func(percent float64, _ string) {
		percents = append(percents, percent)
	})

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("progress samples = %v", percents)
	}
}
