package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docforge/internal/enhance"
	"docforge/internal/logging"
	"docforge/internal/queue"
	"docforge/internal/services"
	"docforge/internal/stage"
	"docforge/internal/tracing"
)

// persistTimeout bounds queue writes that must survive a cancelled run
// context, e.g. releasing a job during shutdown.
const persistTimeout = 5 * time.Second

func (e *Executor) processJob(ctx context.Context, logger *slog.Logger, worker int, job *queue.Job) error {
	start := time.Now()
	jobCtx := job.Trace.Restore(ctx)
	jobLogger := logger.With(logging.String(logging.FieldJobID, job.ID))

	job.Attempts++
	job.ClearError()
	if err := e.store.Update(jobCtx, job); err != nil {
		jobLogger.Error("failed to persist claim state", logging.Error(err))
		return err
	}
	e.publish(jobCtx, job)

	jobLogger.Info("job claimed",
		logging.String(logging.FieldEventType, "job_claimed"),
		logging.Int("attempt", job.Attempts),
		logging.String("priority", job.Priority.String()))

	startIndex := 0
	if job.CurrentStage != "" {
		startIndex = stageIndex(e.stages, job.CurrentStage)
	}

	for i := startIndex; i < len(e.stages); i++ {
		// Stage boundaries are the only interruption points.
		select {
		case <-ctx.Done():
			e.releaseForShutdown(jobLogger, job)
			return context.Canceled
		default:
		}

		cancelled, err := e.cancelRequested(jobCtx, job)
		if err != nil {
			jobLogger.Warn("cancel flag check failed", logging.Error(err))
		}
		if cancelled {
			e.finishCancelled(jobCtx, jobLogger, job)
			return nil
		}

		def := e.stages[i]
		if err := e.runStage(jobCtx, jobLogger, def, job, weightBefore(e.stages, i)); err != nil {
			return e.handleStageFailure(jobCtx, jobLogger, def.Name, job, err)
		}
	}

	return e.finishCompleted(jobCtx, jobLogger, job, start)
}

func (e *Executor) runStage(ctx context.Context, jobLogger *slog.Logger, def Definition, job *queue.Job, completedWeight float64) error {
	stageCtx := services.WithStage(ctx, def.Name)
	stageCtx, span := tracing.StartStageSpan(stageCtx, def.Name, job.ID, job.Attempts)
	defer span.End()

	stageLogger := logging.WithContext(stageCtx, jobLogger)
	if aware, ok := def.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	sampler := logging.NewProgressSampler(
		e.cfg.Progress.MinPercentDelta,
		time.Duration(e.cfg.Progress.MinIntervalSeconds)*time.Second,
	)
	if aware, ok := def.Handler.(stage.ProgressAware); ok {
		aware.SetProgressFunc(func(percent float64, message string) {
			job.SetProgress(def.Name, percent, overallPercent(completedWeight, def.Weight, percent), message)
			if !sampler.ShouldEmit(percent, def.Name) {
				return
			}
			if err := e.store.Update(stageCtx, job); err != nil {
				stageLogger.Warn("failed to persist progress", logging.Error(err))
				return
			}
			e.publish(stageCtx, job)
		})
	}

	job.SetProgress(def.Name, 0, completedWeight, def.Name+" started")
	if err := e.store.Update(stageCtx, job); err != nil {
		return fmt.Errorf("persist stage transition: %w", err)
	}
	e.publish(stageCtx, job)

	stageStart := time.Now()
	outcome := "error"
	defer func() {
		e.observer.ObserveStage(def.Name, outcome, time.Since(stageStart))
	}()
	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	timeout := stageTimeout(e.cfg, def.Name)
	execCtx, cancelExec := context.WithTimeout(stageCtx, timeout)
	defer cancelExec()

	if err := def.Handler.Prepare(execCtx, job); err != nil {
		return e.recordSpanFailure(span, def.Name, timeout, execCtx, err)
	}
	if err := e.store.Update(stageCtx, job); err != nil {
		return fmt.Errorf("persist stage preparation: %w", err)
	}

	execErr := e.executeWithHeartbeat(execCtx, stageCtx, def.Handler, job)
	if execErr != nil {
		return e.recordSpanFailure(span, def.Name, timeout, execCtx, execErr)
	}

	job.SetProgress(def.Name, 100, completedWeight+def.Weight, def.Name+" complete")
	if err := e.store.Update(stageCtx, job); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}
	e.publish(stageCtx, job)

	outcome = "ok"
	span.SetStatus(codes.Ok, "")
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.Float64("overall_progress", job.OverallProgress))
	return nil
}

func (e *Executor) executeWithHeartbeat(execCtx, stageCtx context.Context, handler stage.Handler, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(stageCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go e.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	err := handler.Execute(execCtx, job)
	hbCancel()
	hbWG.Wait()
	return err
}

// recordSpanFailure normalizes stage errors onto the span and converts
// a blown stage budget into a timeout-classified failure.
func (e *Executor) recordSpanFailure(span trace.Span, stageName string, timeout time.Duration, execCtx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) && execCtx.Err() != nil {
		err = services.Wrap(services.ErrTimeout, stageName, "execute",
			fmt.Sprintf("stage exceeded its %s budget", timeout), err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, services.Classify(err).Code)
	return err
}

func (e *Executor) handleStageFailure(ctx context.Context, jobLogger *slog.Logger, stageName string, job *queue.Job, stageErr error) error {
	if errors.Is(stageErr, context.Canceled) && ctx.Err() != nil {
		e.releaseForShutdown(jobLogger, job)
		return context.Canceled
	}

	classified := services.Classify(stageErr)
	job.SetError(classified.Code, classified.Message, classified.Retryable)
	limit := services.AttemptLimit(stageErr, job.MaxAttempts)
	if classified.Code == services.CodeProvider || classified.Code == services.CodeTimeout {
		e.observer.ObserveProviderError(classified.Code)
	}

	if classified.Retryable && job.Attempts < limit {
		delay := e.backoffDelay(job.Attempts)
		jobLogger.Warn("stage failed, retry scheduled",
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.String(logging.FieldStage, stageName),
			logging.String(logging.FieldErrorCode, classified.Code),
			logging.Int("attempt", job.Attempts),
			logging.Int("attempt_limit", limit),
			logging.Duration("delay", delay),
			logging.Error(stageErr))
		if err := e.store.ScheduleRetry(ctx, job, delay); err != nil {
			jobLogger.Error("failed to schedule retry", logging.Error(err))
			return err
		}
		e.observer.ObserveRetry()
		e.publish(ctx, job)
		return stageErr
	}

	now := time.Now().UTC()
	job.Status = queue.StatusFailed
	job.CompletedAt = &now
	job.Worker = nil
	job.LastHeartbeat = nil
	jobLogger.Error("job failed",
		logging.String(logging.FieldEventType, "job_failed"),
		logging.String(logging.FieldStage, stageName),
		logging.String(logging.FieldErrorCode, classified.Code),
		logging.Alert("stage_failure"),
		logging.Int("attempt", job.Attempts),
		logging.Error(stageErr))
	if err := e.store.Update(ctx, job); err != nil {
		jobLogger.Error("failed to persist job failure", logging.Error(err))
		return err
	}
	e.observer.ObserveFinished(string(queue.StatusFailed))
	e.publish(ctx, job)
	if err := e.notifier.NotifyJobFailed(ctx, job); err != nil {
		jobLogger.Warn("failure notification not delivered", logging.Error(err))
	}
	return stageErr
}

// backoffDelay computes the exponential retry delay for the attempt
// that just failed.
func (e *Executor) backoffDelay(attempt int) time.Duration {
	initial := time.Duration(e.cfg.Retry.InitialDelay) * time.Second
	if initial <= 0 {
		initial = time.Second
	}
	multiplier := e.cfg.Retry.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	maxDelay := time.Duration(e.cfg.Retry.MaxDelay) * time.Second
	if maxDelay <= 0 {
		maxDelay = 5 * time.Minute
	}

	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt-1)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}

func (e *Executor) cancelRequested(ctx context.Context, job *queue.Job) (bool, error) {
	fresh, err := e.store.GetJob(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if fresh == nil {
		return false, nil
	}
	job.CancelRequested = fresh.CancelRequested
	return fresh.CancelRequested, nil
}

func (e *Executor) finishCancelled(ctx context.Context, jobLogger *slog.Logger, job *queue.Job) {
	now := time.Now().UTC()
	job.Status = queue.StatusCancelled
	job.CompletedAt = &now
	job.Worker = nil
	job.LastHeartbeat = nil
	job.ProgressMessage = "cancelled by user"
	if err := e.store.Update(ctx, job); err != nil {
		jobLogger.Error("failed to persist cancellation", logging.Error(err))
		return
	}
	e.observer.ObserveFinished(string(queue.StatusCancelled))
	e.publish(ctx, job)
	jobLogger.Info("job cancelled at stage boundary",
		logging.String(logging.FieldEventType, "job_cancelled"),
		logging.String(logging.FieldStage, job.CurrentStage))
}

func (e *Executor) finishCompleted(ctx context.Context, jobLogger *slog.Logger, job *queue.Job, start time.Time) error {
	if result, err := enhance.DecodeResult(job.ResultJSON); err == nil && result.EnhancedURL != "" {
		result.ProcessingTimeSeconds = time.Since(start).Seconds()
		if encoded, err := result.Encode(); err == nil {
			job.ResultJSON = encoded
		}
	}

	now := time.Now().UTC()
	job.Status = queue.StatusCompleted
	job.CompletedAt = &now
	job.Worker = nil
	job.LastHeartbeat = nil
	job.StageProgress = 100
	job.OverallProgress = 100
	job.ProgressMessage = "enhancement complete"
	if err := e.store.Update(ctx, job); err != nil {
		jobLogger.Error("failed to persist completion", logging.Error(err))
		return err
	}
	e.observer.ObserveFinished(string(queue.StatusCompleted))
	e.publish(ctx, job)
	if err := e.notifier.NotifyJobCompleted(ctx, job); err != nil {
		jobLogger.Warn("completion notification not delivered", logging.Error(err))
	}
	jobLogger.Info("job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.Duration("processing_time", time.Since(start)))
	return nil
}

// releaseForShutdown puts a claimed job back in the queue without
// burning an attempt so it resumes from its current stage later.
func (e *Executor) releaseForShutdown(jobLogger *slog.Logger, job *queue.Job) {
	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if job.Attempts > 0 {
		job.Attempts--
	}
	job.Status = queue.StatusPending
	job.Worker = nil
	job.LastHeartbeat = nil
	job.NextAttemptAt = nil
	if err := e.store.Update(persistCtx, job); err != nil {
		jobLogger.Error("failed to release job during shutdown", logging.Error(err))
		return
	}
	jobLogger.Info("job released for shutdown",
		logging.String(logging.FieldEventType, "job_released"),
		logging.String(logging.FieldStage, job.CurrentStage))
}
