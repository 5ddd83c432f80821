package enhance

import (
	"bytes"
	"context"
	"log/slog"

	"docforge/internal/assets"
	"docforge/internal/logging"
	"docforge/internal/provider"
	"docforge/internal/queue"
	"docforge/internal/stage"
)

// Composer assembles the final enhanced document, publishes it to the
// asset store, and records the job result.
type Composer struct {
	base
}

// NewComposer creates the composition stage handler.
func NewComposer(client provider.Provider, blobs assets.Store, logger *slog.Logger) *Composer {
	return &Composer{base: newBase(client, blobs, logger)}
}

func (c *Composer) Prepare(context.Context, *queue.Job) error { return nil }

func (c *Composer) Execute(ctx context.Context, job *queue.Job) error {
	req, err := c.request(job)
	if err != nil {
		return err
	}

	var analysis provider.Analysis
	if err := c.getJSON(ctx, artifactKey(job, analysisArtifact), &analysis); err != nil {
		return err
	}
	var generation provider.Generation
	if err := c.getJSON(ctx, artifactKey(job, generationArtifact), &generation); err != nil {
		return err
	}

	c.report(10, "composing enhanced document")
	composition, err := c.client.Compose(ctx, req, &generation)
	if err != nil {
		return err
	}

	c.report(60, "publishing enhanced document")
	enhancedURL, err := c.blobs.Put(ctx, artifactKey(job, enhancedArtifact), bytes.NewReader(composition.Document))
	if err != nil {
		return err
	}
	var thumbnailURL string
	if len(composition.Thumbnail) > 0 {
		thumbnailURL, err = c.blobs.Put(ctx, artifactKey(job, thumbnailArtifact), bytes.NewReader(composition.Thumbnail))
		if err != nil {
			return err
		}
	}

	result := Result{
		EnhancedURL:        enhancedURL,
		ThumbnailURL:       thumbnailURL,
		Improvements:       composition.Improvements,
		QualityScoreBefore: analysis.QualityScore,
		QualityScoreAfter:  composition.QualityScore,
	}
	encoded, err := result.Encode()
	if err != nil {
		return err
	}
	job.ResultJSON = encoded

	c.logger.Info("composition complete",
		logging.String(logging.FieldEventType, "composition_complete"),
		logging.String("enhanced_url", enhancedURL),
		logging.Float64("quality_before", result.QualityScoreBefore),
		logging.Float64("quality_after", result.QualityScoreAfter))
	c.report(100, "document composed")
	return nil
}

func (c *Composer) HealthCheck(context.Context) stage.Health {
	if c.client == nil {
		return stage.Unhealthy("composition", "enhancement provider not configured")
	}
	if c.blobs == nil {
		return stage.Unhealthy("composition", "asset store not configured")
	}
	return stage.Healthy("composition")
}
