package enhance

import (
	"context"
	"log/slog"

	"docforge/internal/assets"
	"docforge/internal/logging"
	"docforge/internal/provider"
	"docforge/internal/queue"
	"docforge/internal/stage"
)

// Planner turns the analysis artifact into an ordered enhancement plan.
type Planner struct {
	base
}

// NewPlanner creates the planning stage handler.
func NewPlanner(client provider.Provider, blobs assets.Store, logger *slog.Logger) *Planner {
	return &Planner{base: newBase(client, blobs, logger)}
}

func (p *Planner) Prepare(context.Context, *queue.Job) error { return nil }

func (p *Planner) Execute(ctx context.Context, job *queue.Job) error {
	req, err := p.request(job)
	if err != nil {
		return err
	}

	var analysis provider.Analysis
	if err := p.getJSON(ctx, artifactKey(job, analysisArtifact), &analysis); err != nil {
		return err
	}

	p.report(20, "planning enhancements")
	plan, err := p.client.Plan(ctx, req, &analysis)
	if err != nil {
		return err
	}

	if err := p.putJSON(ctx, artifactKey(job, planArtifact), plan); err != nil {
		return err
	}

	p.logger.Info("plan ready",
		logging.String(logging.FieldEventType, "plan_ready"),
		logging.Int("actions", len(plan.Actions)),
		logging.Float64("estimated_improvement", plan.EstimatedImprovement))
	p.report(100, "plan ready")
	return nil
}

func (p *Planner) HealthCheck(context.Context) stage.Health {
	if p.client == nil {
		return stage.Unhealthy("planning", "enhancement provider not configured")
	}
	return stage.Healthy("planning")
}
