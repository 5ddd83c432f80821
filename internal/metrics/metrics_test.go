package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesInstruments(t *testing.T) {
	m := New()
	m.ObserveSubmission("pro", "accepted")
	m.ObserveFinished("completed")
	m.ObserveRetry()
	m.ObserveStage("analysis", "ok", 2*time.Second)
	m.ObserveProviderError("PROVIDER")
	m.ObserveDroppedEvents(3)
	m.WorkerStarted()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`docforge_submissions_total{outcome="accepted",tier="pro"} 1`,
		`docforge_jobs_finished_total{status="completed"} 1`,
		`docforge_job_retries_total 1`,
		`docforge_provider_errors_total{code="PROVIDER"} 1`,
		`docforge_progress_events_dropped_total 3`,
		`docforge_workers_active 1`,
		`docforge_stage_duration_seconds_bucket{outcome="ok",stage="analysis",le="2.5"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}
