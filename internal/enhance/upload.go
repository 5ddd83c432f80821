package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docforge/internal/assets"
	"docforge/internal/logging"
	"docforge/internal/provider"
	"docforge/internal/queue"
	"docforge/internal/services"
	"docforge/internal/stage"
)

// UploadConfirm verifies the uploaded source document is present and
// the settings record parses before any provider work starts.
type UploadConfirm struct {
	base
}

// NewUploadConfirm creates the upload-confirmation stage handler.
func NewUploadConfirm(client provider.Provider, blobs assets.Store, logger *slog.Logger) *UploadConfirm {
	return &UploadConfirm{base: newBase(client, blobs, logger)}
}

func (u *UploadConfirm) Prepare(_ context.Context, job *queue.Job) error {
	if _, err := ParseSettings(job.SettingsJSON); err != nil {
		return err
	}
	return nil
}

func (u *UploadConfirm) Execute(ctx context.Context, job *queue.Job) error {
	u.report(25, "verifying uploaded document")
	reader, err := u.blobs.Get(ctx, sourceKey(job))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return services.Wrap(services.ErrValidation, "upload-confirm", "confirm upload",
				fmt.Sprintf("document %s has no uploaded source", job.DocumentID), err)
		}
		return err
	}
	_ = reader.Close()

	u.logger.Info("upload confirmed",
		logging.String(logging.FieldEventType, "upload_confirmed"),
		logging.String("document_id", job.DocumentID))
	u.report(100, "upload confirmed")
	return nil
}

func (u *UploadConfirm) HealthCheck(context.Context) stage.Health {
	if u.blobs == nil {
		return stage.Unhealthy("upload-confirm", "asset store not configured")
	}
	return stage.Healthy("upload-confirm")
}
