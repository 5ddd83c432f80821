package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"docforge/internal/assets"
	"docforge/internal/logging"
	"docforge/internal/provider"
	"docforge/internal/queue"
	"docforge/internal/stage"
)

const (
	analysisArtifact   = "analysis.json"
	planArtifact       = "plan.json"
	generationArtifact = "generation.json"
	enhancedArtifact   = "enhanced.doc"
	thumbnailArtifact  = "thumbnail.png"
)

func sourceKey(job *queue.Job) string {
	return "documents/" + job.DocumentID + "/source"
}

func artifactKey(job *queue.Job, name string) string {
	return "jobs/" + job.ID + "/" + name
}

// base carries the collaborators shared by every stage handler.
type base struct {
	client   provider.Provider
	blobs    assets.Store
	logger   *slog.Logger
	progress stage.ProgressFunc
}

func newBase(client provider.Provider, blobs assets.Store, logger *slog.Logger) base {
	if logger == nil {
		logger = logging.NewNop()
	}
	return base{client: client, blobs: blobs, logger: logger}
}

func (b *base) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

func (b *base) SetProgressFunc(fn stage.ProgressFunc) {
	b.progress = fn
}

func (b *base) report(percent float64, message string) {
	if b.progress != nil {
		b.progress(percent, message)
	}
}

// request builds the provider request for a job, carrying the raw
// settings document through unchanged.
func (b *base) request(job *queue.Job) (provider.Request, error) {
	settings, err := ParseSettings(job.SettingsJSON)
	if err != nil {
		return provider.Request{}, err
	}
	return provider.Request{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		SourceURL:  b.blobs.URL(sourceKey(job)),
		Settings:   settings.Raw,
	}, nil
}

func (b *base) putJSON(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", key, err)
	}
	if _, err := b.blobs.Put(ctx, key, bytes.NewReader(payload)); err != nil {
		return err
	}
	return nil
}

func (b *base) getJSON(ctx context.Context, key string, out any) error {
	reader, err := b.blobs.Get(ctx, key)
	if err != nil {
		return err
	}
	defer reader.Close()
	payload, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return nil
}
