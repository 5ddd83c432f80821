package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"docforge/internal/logging"
	"docforge/internal/services"
)

// BatchRequest submits several documents under shared settings.
type BatchRequest struct {
	UserID       string   `json:"userId"`
	Tier         string   `json:"tier"`
	DocumentIDs  []string `json:"documentIds"`
	SettingsJSON string   `json:"sharedSettings,omitempty"`
	PriorityHint string   `json:"priorityHint,omitempty"`
}

// BatchItem is the per-document outcome of a batch submission.
type BatchItem struct {
	DocumentID           string `json:"documentId"`
	JobID                string `json:"jobId,omitempty"`
	Accepted             bool   `json:"accepted"`
	Reason               string `json:"reason,omitempty"`
	QueuePosition        int    `json:"queuePosition,omitempty"`
	EstimatedWaitSeconds int    `json:"estimatedWaitSeconds,omitempty"`
}

// BatchResponse acknowledges a batch submission.
type BatchResponse struct {
	BatchID string      `json:"batchId"`
	Items   []BatchItem `json:"items"`
}

// SubmitBatch admits a group of documents as one batch. Size and quota
// violations reject the whole batch before anything is written; after
// that, members are submitted in parallel and each reports its own
// acceptance.
func (g *Gateway) SubmitBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "submit_batch", "userId is required", nil)
	}
	if len(req.DocumentIDs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "submit_batch", "documentIds is empty", nil)
	}

	plan, err := g.billing.Plan(ctx, req.Tier)
	if err != nil {
		return nil, err
	}
	if plan.BatchLimit > 0 && len(req.DocumentIDs) > plan.BatchLimit {
		return nil, services.Wrap(services.ErrValidation, "", "submit_batch",
			fmt.Sprintf("batch of %d exceeds tier %s limit of %d",
				len(req.DocumentIDs), req.Tier, plan.BatchLimit), ErrBatchTooLarge)
	}
	remaining, err := g.billing.Remaining(ctx, req.UserID, req.Tier)
	if err != nil {
		return nil, err
	}
	if remaining >= 0 && len(req.DocumentIDs) > remaining {
		return nil, services.Wrap(services.ErrQuotaExceeded, "", "submit_batch",
			fmt.Sprintf("batch of %d exceeds remaining quota of %d",
				len(req.DocumentIDs), remaining), nil)
	}

	batchID := uuid.NewString()
	if _, err := g.store.NewBatch(ctx, batchID, req.UserID, req.Tier, plan.BatchLimit); err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(req.DocumentIDs))
	var wg sync.WaitGroup
	wg.Add(len(req.DocumentIDs))
	for i, docID := range req.DocumentIDs {
		go func(i int, docID string) {
			defer wg.Done()
			items[i] = g.submitMember(ctx, req, batchID, docID)
		}(i, docID)
	}
	wg.Wait()

	accepted := 0
	for _, item := range items {
		if item.Accepted {
			accepted++
		}
	}
	g.logger.Info("batch submitted",
		logging.String(logging.FieldEventType, "batch_submitted"),
		logging.String(logging.FieldBatchID, batchID),
		logging.String("tier", req.Tier),
		logging.Int("accepted", accepted),
		logging.Int("total", len(items)))

	return &BatchResponse{BatchID: batchID, Items: items}, nil
}

func (g *Gateway) submitMember(ctx context.Context, req BatchRequest, batchID, docID string) BatchItem {
	resp, err := g.Submit(ctx, SubmitRequest{
		UserID:       req.UserID,
		Tier:         req.Tier,
		DocumentID:   docID,
		SettingsJSON: req.SettingsJSON,
		PriorityHint: req.PriorityHint,
		BatchID:      batchID,
	})
	if err != nil {
		classified := services.Classify(err)
		return BatchItem{
			DocumentID: docID,
			Accepted:   false,
			Reason:     classified.Code + ": " + classified.Message,
		}
	}
	return BatchItem{
		DocumentID:           docID,
		JobID:                resp.JobID,
		Accepted:             true,
		QueuePosition:        resp.QueuePosition,
		EstimatedWaitSeconds: resp.EstimatedWaitSeconds,
	}
}
