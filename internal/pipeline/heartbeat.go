package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"docforge/internal/logging"
	"docforge/internal/queue"
)

// HeartbeatMonitor keeps claimed job leases fresh and reclaims jobs
// whose worker stopped heartbeating.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a monitor with the given beat interval
// and stale-lease timeout.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HeartbeatMonitor{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "pipeline-heartbeat"),
		interval: interval,
		timeout:  timeout,
	}
}

// ReclaimStale releases processing jobs whose heartbeat aged out back
// to pending so another worker can resume them.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) error {
	if h.timeout <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale jobs",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"))
	}
	return nil
}

// StartLoop beats for one job until the context is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				h.logger.Warn("heartbeat update failed",
					logging.String(logging.FieldJobID, jobID),
					logging.Error(err))
			}
		}
	}
}
