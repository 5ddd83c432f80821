package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docforge/internal/logging"
	"docforge/internal/services"
)

func (e *Executor) runWorker(ctx context.Context, worker int) {
	defer e.wg.Done()
	logger := e.logger.With(logging.Int(logging.FieldWorker, worker))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Worker zero doubles as the queue janitor.
		if worker == 0 {
			if err := e.heartbeat.ReclaimStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check queue database access"))
			}
			if cancelled, err := e.store.CancelFlaggedPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("cancel sweep failed", logging.Error(err))
			} else if cancelled > 0 {
				logger.Info("cancelled released jobs",
					logging.Int64("count", cancelled),
					logging.String(logging.FieldEventType, "cancel_sweep"))
			}
		}

		job, err := e.store.Claim(ctx, worker)
		if err != nil {
			e.handleClaimError(ctx, logger, err)
			continue
		}
		if job == nil {
			e.waitForWork(ctx)
			continue
		}

		jobCtx := services.WithWorker(services.WithJobID(ctx, job.ID), worker)
		e.observer.WorkerStarted()
		err = e.processJob(jobCtx, logger, worker, job)
		e.observer.WorkerStopped()
		if err != nil && errors.Is(err, context.Canceled) {
			return
		}
	}
}

func (e *Executor) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	logger.Error("failed to claim next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_claim_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"))
	interval := e.errorInterval
	if interval <= 0 {
		interval = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}

func (e *Executor) waitForWork(ctx context.Context) {
	interval := e.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}
