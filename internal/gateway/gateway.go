// Package gateway is the submission front door. It validates requests,
// enforces quota and per-tier backpressure, rejects fast while the
// daemon is unhealthy, and hands accepted work to the queue.
package gateway

import (
	"errors"
	"log/slog"

	"docforge/internal/batch"
	"docforge/internal/billing"
	"docforge/internal/config"
	"docforge/internal/health"
	"docforge/internal/logging"
	"docforge/internal/queue"
)

// Submission-time rejections that do not fit the job error taxonomy.
// The API layer maps them to retry-later responses.
var (
	ErrUnhealthy     = errors.New("service is not accepting new work")
	ErrBackpressure  = errors.New("tier queue depth limit reached")
	ErrBatchTooLarge = errors.New("batch size exceeds tier limit")
)

// Admission exposes the latest health report without forcing a probe on
// the request path.
type Admission interface {
	Last() health.Report
}

// SubmissionObserver counts gateway outcomes. The metrics package
// satisfies it.
type SubmissionObserver interface {
	ObserveSubmission(tier, outcome string)
}

type nopSubmissionObserver struct{}

func (nopSubmissionObserver) ObserveSubmission(string, string) {}

// Gateway validates and admits enhancement work.
type Gateway struct {
	cfg      *config.Config
	store    *queue.Store
	billing  billing.Service
	batches  *batch.Coordinator
	health   Admission
	logger   *slog.Logger
	observer SubmissionObserver
}

// New wires the gateway. health may be nil, which disables the
// admission check; useful in tests and single-shot tools.
func New(cfg *config.Config, store *queue.Store, bill billing.Service, batches *batch.Coordinator, admission Admission, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		store:    store,
		billing:  bill,
		batches:  batches,
		health:   admission,
		logger:   logging.NewComponentLogger(logger, "gateway"),
		observer: nopSubmissionObserver{},
	}
}

// SetObserver installs an instrumentation sink.
func (g *Gateway) SetObserver(obs SubmissionObserver) {
	if obs == nil {
		obs = nopSubmissionObserver{}
	}
	g.observer = obs
}
