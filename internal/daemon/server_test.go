package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docforge/internal/config"
	"docforge/internal/gateway"
	"docforge/internal/queue"
	"docforge/internal/testsupport"
)

func newTestDaemon(t *testing.T, mutate func(cfg *config.Config)) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}

	d, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-DocForge-User", "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec
}

func TestSubmitStatusCancelOverHTTP(t *testing.T) {
	d := newTestDaemon(t, nil)
	handler := d.server.server.Handler

	var submitted gateway.SubmitResponse
	rec := doJSON(t, handler, http.MethodPost, "/api/jobs", gateway.SubmitRequest{
		UserID: "user-1", Tier: "free", DocumentID: "doc-1",
	}, &submitted)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d body=%s", rec.Code, rec.Body.String())
	}
	if submitted.JobID == "" || submitted.QueuePosition != 1 {
		t.Fatalf("unexpected submit response: %+v", submitted)
	}

	var status gateway.StatusResponse
	rec = doJSON(t, handler, http.MethodGet, "/api/jobs/"+submitted.JobID, nil, &status)
	if rec.Code != http.StatusOK || status.Status != queue.StatusPending {
		t.Fatalf("status = %d %+v", rec.Code, status)
	}

	var cancelled gateway.CancelResponse
	rec = doJSON(t, handler, http.MethodDelete, "/api/jobs/"+submitted.JobID, nil, &cancelled)
	if rec.Code != http.StatusOK || !cancelled.JobRemoved {
		t.Fatalf("cancel = %d %+v", rec.Code, cancelled)
	}

	var cleared gateway.ClearResponse
	rec = doJSON(t, handler, http.MethodPost, "/api/queue/clear", nil, &cleared)
	if rec.Code != http.StatusOK || cleared.Removed != 1 {
		t.Fatalf("clear = %d %+v", rec.Code, cleared)
	}
}

func TestSubmitRejectionShapesOverHTTP(t *testing.T) {
	d := newTestDaemon(t, nil)
	handler := d.server.server.Handler

	rec := doJSON(t, handler, http.MethodPost, "/api/jobs", gateway.SubmitRequest{
		UserID: "user-1", Tier: "free",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("validation status = %d, want 400", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload.Error.Code != "VALIDATION" {
		t.Fatalf("error code = %s, want VALIDATION", payload.Error.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/batches", gateway.BatchRequest{
		UserID: "user-1", Tier: "free", DocumentIDs: []string{"a", "b"},
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("batch size status = %d, want 400", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode batch error body: %v", err)
	}
	if payload.Error.Code != "BATCH_SIZE_EXCEEDED" {
		t.Fatalf("batch error code = %s, want BATCH_SIZE_EXCEEDED", payload.Error.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/jobs/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d, want 404", rec.Code)
	}
}

func TestBearerAuthGuardsAPI(t *testing.T) {
	d := newTestDaemon(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "secret"
	})
	handler := d.server.server.Handler

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", rec.Code)
	}

	// Health and metrics stay public for probes and scrapers.
	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
}

func TestHealthEndpointReportsDependencies(t *testing.T) {
	d := newTestDaemon(t, nil)
	handler := d.server.server.Handler

	d.monitor.Check(context.Background())

	var status Status
	rec := doJSON(t, handler, http.MethodGet, "/api/health", nil, &status)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if len(status.Health.Dependencies) < 3 {
		t.Fatalf("dependencies = %d, want store, assets, provider", len(status.Health.Dependencies))
	}
}

func TestDaemonLifecycle(t *testing.T) {
	d := newTestDaemon(t, func(cfg *config.Config) {
		cfg.Workers.Count = 1
		cfg.Workers.QueuePollInterval = 1
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !d.Status().Running {
		t.Fatal("daemon should report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second start should fail")
	}

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stop did not complete")
	}
	if d.Status().Running {
		t.Fatal("daemon should report stopped")
	}
}

func TestJobEventsEndImmediatelyForFinishedJob(t *testing.T) {
	d := newTestDaemon(t, nil)
	handler := d.server.server.Handler

	var submitted gateway.SubmitResponse
	rec := doJSON(t, handler, http.MethodPost, "/api/jobs", gateway.SubmitRequest{
		UserID: "user-1", Tier: "free", DocumentID: "doc-1",
	}, &submitted)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", rec.Code)
	}

	job, err := d.store.GetJob(context.Background(), submitted.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	job.Status = queue.StatusCompleted
	job.OverallProgress = 100
	if err := d.store.Update(context.Background(), job); err != nil {
		t.Fatalf("complete job: %v", err)
	}

	// Bound the request so a stream that fails to finish turns into a
	// test failure instead of a deadlock.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+submitted.JobID+"/events", nil).WithContext(ctx)
	req.Header.Set("X-DocForge-User", "user-1")
	stream := httptest.NewRecorder()
	handler.ServeHTTP(stream, req)

	body := stream.Body.String()
	if !strings.Contains(body, `"status":"completed"`) {
		t.Fatalf("missing terminal snapshot in stream: %q", body)
	}
	if !strings.Contains(body, "event: end") {
		t.Fatalf("stream did not end: %q", body)
	}
}
