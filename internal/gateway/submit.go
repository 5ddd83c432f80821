package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docforge/internal/billing"
	"docforge/internal/enhance"
	"docforge/internal/logging"
	"docforge/internal/pipeline"
	"docforge/internal/queue"
	"docforge/internal/services"
	"docforge/internal/tracing"
)

// SubmitRequest is one enhancement submission.
type SubmitRequest struct {
	UserID       string `json:"userId"`
	Tier         string `json:"tier"`
	DocumentID   string `json:"documentId"`
	SettingsJSON string `json:"settings,omitempty"`
	// PriorityHint may demote a job below the tier's class, never
	// promote above it.
	PriorityHint string `json:"priorityHint,omitempty"`
	// UploadTrace optionally references the client's upload operation;
	// the submit span links back to it.
	UploadTrace tracing.Context `json:"uploadTrace,omitempty"`
	// BatchID links the job to a batch; set by SubmitBatch only.
	BatchID string `json:"-"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	JobID                string `json:"jobId"`
	QueuePosition        int    `json:"queuePosition"`
	EstimatedWaitSeconds int    `json:"estimatedWaitSeconds"`
}

// Submit validates the request, checks health, quota and tier depth,
// then persists a pending job. Nothing is written on rejection.
func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	plan, err := g.admit(ctx, req)
	if err != nil {
		g.observer.ObserveSubmission(req.Tier, "rejected")
		return nil, err
	}

	resp, err := g.enqueue(ctx, req, plan)
	if err != nil {
		g.observer.ObserveSubmission(req.Tier, "rejected")
		return nil, err
	}
	g.observer.ObserveSubmission(req.Tier, "accepted")
	return resp, nil
}

// admit runs every side-effect-free check a submission must pass.
func (g *Gateway) admit(ctx context.Context, req SubmitRequest) (billing.Plan, error) {
	if err := validateSubmit(req); err != nil {
		return billing.Plan{}, err
	}
	if g.health != nil && !g.health.Last().Healthy() {
		return billing.Plan{}, services.Wrap(services.ErrProvider, "", "submit",
			"service unhealthy, retry later", ErrUnhealthy)
	}

	plan, err := g.billing.Plan(ctx, req.Tier)
	if err != nil {
		return billing.Plan{}, err
	}
	remaining, err := g.billing.Remaining(ctx, req.UserID, req.Tier)
	if err != nil {
		return billing.Plan{}, err
	}
	if remaining == 0 {
		return billing.Plan{}, services.Wrap(services.ErrQuotaExceeded, "", "submit",
			fmt.Sprintf("monthly quota for tier %s exhausted", req.Tier), nil)
	}

	depth, err := g.store.PendingDepthForTier(ctx, req.Tier)
	if err != nil {
		return billing.Plan{}, err
	}
	if limit := g.depthLimit(plan); depth >= limit {
		return billing.Plan{}, services.Wrap(services.ErrQuotaExceeded, "", "submit",
			fmt.Sprintf("tier %s already has %d pending jobs", req.Tier, depth), ErrBackpressure)
	}
	return plan, nil
}

func (g *Gateway) enqueue(ctx context.Context, req SubmitRequest, plan billing.Plan) (*SubmitResponse, error) {
	jobID := uuid.NewString()
	ctx, span, traceCtx := tracing.StartSubmitSpan(ctx, jobID, req.UploadTrace)
	defer span.End()

	job, err := g.store.NewJob(ctx, queue.NewJobParams{
		ID:           jobID,
		DocumentID:   req.DocumentID,
		UserID:       req.UserID,
		BatchID:      req.BatchID,
		Tier:         req.Tier,
		Priority:     effectivePriority(plan.Priority, req.PriorityHint),
		MaxAttempts:  g.cfg.Retry.MaxAttempts,
		SettingsJSON: req.SettingsJSON,
		Trace:        traceCtx,
	})
	if err != nil {
		return nil, err
	}

	if err := g.billing.Record(ctx, billing.UsageRecord{
		UserID:     req.UserID,
		JobID:      job.ID,
		DocumentID: req.DocumentID,
		Tier:       req.Tier,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		// The job is already queued; usage bookkeeping must not undo it.
		g.logger.Warn("usage record failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}

	rank, err := g.store.Rank(ctx, job)
	if err != nil {
		g.logger.Warn("queue rank lookup failed", logging.Error(err))
		rank = 0
	}

	logging.WithContext(ctx, g.logger).Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String("tier", req.Tier),
		logging.String("priority", job.Priority.String()),
		logging.Int("queue_position", rank+1))

	return &SubmitResponse{
		JobID:                job.ID,
		QueuePosition:        rank + 1,
		EstimatedWaitSeconds: g.estimateWait(rank),
	}, nil
}

func (g *Gateway) depthLimit(plan billing.Plan) int {
	limit := g.cfg.Queue.MaxDepthPerTier
	if plan.MaxQueueDepth > 0 && (limit <= 0 || plan.MaxQueueDepth < limit) {
		limit = plan.MaxQueueDepth
	}
	if limit <= 0 {
		limit = 100
	}
	return limit
}

// estimateWait projects the wait for a job with rank jobs ahead of it,
// assuming each runs the full stage sequence at the configured average.
func (g *Gateway) estimateWait(rank int) int {
	perStage := g.cfg.Queue.AverageStageSeconds
	if perStage <= 0 {
		perStage = 12
	}
	return rank * perStage * len(pipeline.StageNames())
}

func validateSubmit(req SubmitRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return services.Wrap(services.ErrValidation, "", "submit", "userId is required", nil)
	}
	if strings.TrimSpace(req.Tier) == "" {
		return services.Wrap(services.ErrValidation, "", "submit", "tier is required", nil)
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		return services.Wrap(services.ErrValidation, "", "submit", "documentId is required", nil)
	}
	if _, err := enhance.ParseSettings(req.SettingsJSON); err != nil {
		return err
	}
	if req.PriorityHint != "" {
		if _, ok := queue.ParsePriority(req.PriorityHint); !ok {
			return services.Wrap(services.ErrValidation, "", "submit",
				fmt.Sprintf("unknown priority hint %q", req.PriorityHint), nil)
		}
	}
	if req.UploadTrace != (tracing.Context{}) && !req.UploadTrace.Valid() {
		return services.Wrap(services.ErrValidation, "", "submit", "uploadTrace is malformed", nil)
	}
	return nil
}

// effectivePriority applies the hint only when it demotes.
func effectivePriority(planned queue.Priority, hint string) queue.Priority {
	if hint == "" {
		return planned
	}
	hinted, ok := queue.ParsePriority(hint)
	if !ok || hinted < planned {
		return planned
	}
	return hinted
}
