package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docforge/internal/config"
	"docforge/internal/queue"
)

const userAgent = "DocForge-Go/0.1.0"

// Service defines the notification surface exposed to the pipeline and
// batch coordinator.
type Service interface {
	NotifyJobCompleted(ctx context.Context, job *queue.Job) error
	NotifyJobFailed(ctx context.Context, job *queue.Job) error
	NotifyBatchFinished(ctx context.Context, batchID, status string, completed, failed int) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		jobCompleted:  cfg.Notifications.JobCompleted,
		jobFailed:     cfg.Notifications.JobFailed,
		batchFinished: cfg.Notifications.BatchFinished,
		errors:        cfg.Notifications.Errors,
	}
}

// NewNop returns a service that drops every notification.
func NewNop() Service { return noopService{} }

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	jobCompleted  bool
	jobFailed     bool
	batchFinished bool
	errors        bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, job *queue.Job) error {
	if !n.jobCompleted || job == nil {
		return nil
	}
	data := payload{
		title:   "DocForge - Enhancement Complete",
		message: fmt.Sprintf("Document %s enhanced (job %s)", job.DocumentID, job.ID),
		tags:    []string{"docforge", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, job *queue.Job) error {
	if !n.jobFailed || job == nil {
		return nil
	}
	message := fmt.Sprintf("Enhancement of document %s failed (job %s)", job.DocumentID, job.ID)
	if msg := strings.TrimSpace(job.ErrorMessage); msg != "" {
		message = fmt.Sprintf("%s\n%s", message, msg)
	}
	data := payload{
		title:    "DocForge - Enhancement Failed",
		message:  message,
		tags:     []string{"docforge", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchFinished(ctx context.Context, batchID, status string, completed, failed int) error {
	if !n.batchFinished {
		return nil
	}
	var title string
	switch status {
	case "completed":
		title = "DocForge - Batch Complete"
	case "partial":
		title = "DocForge - Batch Complete (with failures)"
	default:
		title = "DocForge - Batch Failed"
	}
	data := payload{
		title:   title,
		message: fmt.Sprintf("Batch %s finished: %d completed, %d failed", batchID, completed, failed),
		tags:    []string{"docforge", "batch", status},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "DocForge - Error",
		message:  builder.String(),
		tags:     []string{"docforge", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "DocForge - Test",
		message:  "Notification system test",
		tags:     []string{"docforge", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, *queue.Job) error { return nil }
func (noopService) NotifyJobFailed(context.Context, *queue.Job) error    { return nil }
func (noopService) NotifyBatchFinished(context.Context, string, string, int, int) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
