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

// Analyzer runs the document-analysis stage and persists the analysis
// artifact for the planning stage.
type Analyzer struct {
	base
}

// NewAnalyzer creates the analysis stage handler.
func NewAnalyzer(client provider.Provider, blobs assets.Store, logger *slog.Logger) *Analyzer {
	return &Analyzer{base: newBase(client, blobs, logger)}
}

func (a *Analyzer) Prepare(context.Context, *queue.Job) error { return nil }

func (a *Analyzer) Execute(ctx context.Context, job *queue.Job) error {
	req, err := a.request(job)
	if err != nil {
		return err
	}

	a.report(10, "analyzing document structure")
	analysis, err := a.client.Analyze(ctx, req)
	if err != nil {
		return err
	}
	a.report(80, "recording analysis")

	if err := a.putJSON(ctx, artifactKey(job, analysisArtifact), analysis); err != nil {
		return err
	}

	a.logger.Info("analysis complete",
		logging.String(logging.FieldEventType, "analysis_complete"),
		logging.String("document_type", analysis.DocumentType),
		logging.Int("sections", analysis.SectionCount),
		logging.Float64("quality_score", analysis.QualityScore))
	a.report(100, "analysis complete")
	return nil
}

func (a *Analyzer) HealthCheck(context.Context) stage.Health {
	if a.client == nil {
		return stage.Unhealthy("analysis", "enhancement provider not configured")
	}
	return stage.Healthy("analysis")
}
