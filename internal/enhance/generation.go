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

// Generator produces enhanced content for every planned action. It is
// the longest-running stage and reports progress as sections arrive.
type Generator struct {
	base
}

// NewGenerator creates the generation stage handler.
func NewGenerator(client provider.Provider, blobs assets.Store, logger *slog.Logger) *Generator {
	return &Generator{base: newBase(client, blobs, logger)}
}

func (g *Generator) Prepare(context.Context, *queue.Job) error { return nil }

func (g *Generator) Execute(ctx context.Context, job *queue.Job) error {
	req, err := g.request(job)
	if err != nil {
		return err
	}

	var plan provider.Plan
	if err := g.getJSON(ctx, artifactKey(job, planArtifact), &plan); err != nil {
		return err
	}

	g.report(5, "generating enhanced content")
	generation, err := g.client.Generate(ctx, req, &plan)
	if err != nil {
		return err
	}
	g.report(85, "persisting generated sections")

	if err := g.putJSON(ctx, artifactKey(job, generationArtifact), generation); err != nil {
		return err
	}

	g.logger.Info("generation complete",
		logging.String(logging.FieldEventType, "generation_complete"),
		logging.Int("sections", len(generation.Sections)))
	g.report(100, "generation complete")
	return nil
}

func (g *Generator) HealthCheck(context.Context) stage.Health {
	if g.client == nil {
		return stage.Unhealthy("generation", "enhancement provider not configured")
	}
	return stage.Healthy("generation")
}
