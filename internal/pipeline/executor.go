package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"docforge/internal/config"
	"docforge/internal/logging"
	"docforge/internal/notifications"
	"docforge/internal/progress"
	"docforge/internal/queue"
	"docforge/internal/stage"
)

// Executor coordinates the worker pool that drains the job queue.
type Executor struct {
	cfg       *config.Config
	store     *queue.Store
	publisher progress.Publisher
	notifier  notifications.Service
	logger    *slog.Logger
	stages    []Definition
	heartbeat *HeartbeatMonitor
	observer  Observer

	pollInterval  time.Duration
	errorInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewExecutor wires the executor. publisher and notifier may be nil; a
// nil publisher silently discards progress events.
func NewExecutor(cfg *config.Config, store *queue.Store, defs []Definition, publisher progress.Publisher, notifier notifications.Service, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewNop()
	}
	return &Executor{
		cfg:           cfg,
		store:         store,
		publisher:     publisher,
		notifier:      notifier,
		logger:        logging.NewComponentLogger(logger, "pipeline"),
		stages:        defs,
		observer:      nopObserver{},
		pollInterval:  time.Duration(cfg.Workers.QueuePollInterval) * time.Second,
		errorInterval: time.Duration(cfg.Workers.ErrorRetryInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workers.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workers.HeartbeatTimeout)*time.Second,
		),
	}
}

// Start launches the worker pool. It returns immediately; workers run
// until Stop or context cancellation.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("pipeline already running")
	}
	if len(e.stages) == 0 {
		return errors.New("pipeline stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true

	workers := e.cfg.Workers.Count
	if workers <= 0 {
		workers = 1
	}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.runWorker(runCtx, i)
	}
	return nil
}

// Stop halts claiming and waits for in-flight stages to finish.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
}

// Running reports whether the worker pool is active.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// StageHealth runs every stage's health check.
func (e *Executor) StageHealth(ctx context.Context) []stage.Health {
	health := make([]stage.Health, 0, len(e.stages))
	for _, def := range e.stages {
		health = append(health, def.Handler.HealthCheck(ctx))
	}
	return health
}

func (e *Executor) publish(ctx context.Context, job *queue.Job) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(ctx, progress.FromJob(job))
}
