package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"

	"docforge/internal/assets"
	"docforge/internal/batch"
	"docforge/internal/billing"
	"docforge/internal/config"
	"docforge/internal/gateway"
	"docforge/internal/health"
	"docforge/internal/logging"
	"docforge/internal/metrics"
	"docforge/internal/notifications"
	"docforge/internal/pipeline"
	"docforge/internal/progress"
	"docforge/internal/provider"
	"docforge/internal/queue"
)

// Daemon wires every subsystem together and manages their lifecycles.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store     *queue.Store
	blobs     assets.Store
	circuit   *health.CircuitProvider
	hub       *progress.Hub
	publisher progress.Publisher
	redis     *redis.Client
	notifier  notifications.Service
	billing   billing.Service
	batches   *batch.Coordinator
	monitor   *health.Monitor
	metrics   *metrics.Metrics
	executor  *pipeline.Executor
	gateway   *gateway.Gateway
	server    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Status is the daemon runtime summary served by the health endpoint.
type Status struct {
	Running      bool          `json:"running"`
	Workers      int           `json:"workers"`
	QueueDBPath  string        `json:"queueDbPath"`
	LockFilePath string        `json:"lockFilePath"`
	Health       health.Report `json:"health"`
}

// New builds a daemon from configuration. It opens the queue store and
// asset root immediately; network-facing pieces start in Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	blobs, err := assets.NewFilesystem(cfg.Paths.AssetDir, "")
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open asset store: %w", err)
	}

	prov, err := buildProvider(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	circuit := health.NewCircuitProvider(cfg, prov, logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		blobs:    blobs,
		circuit:  circuit,
		hub:      progress.NewHub(cfg.Progress.SubscriberBuffer, logger),
		notifier: notifications.NewService(cfg),
		billing:  billing.NewStatic(nil),
		metrics:  metrics.New(),
		lockPath: filepath.Join(cfg.Paths.DataDir, "docforged.lock"),
		done:     make(chan struct{}),
	}
	d.lock = flock.New(d.lockPath)
	d.hub.OnDrop(d.metrics.ObserveDroppedEvents)
	d.metrics.Register(metrics.NewQueueCollector(store))

	d.publisher = d.hub
	if cfg.Redis.Enabled {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.publisher = progress.NewRedisBroadcaster(
			d.hub, d.redis, cfg.Redis.ChannelPrefix, instanceOrigin(), logger)
	}

	d.batches = batch.NewCoordinator(store, d.notifier, logger)

	probes := []health.Probe{
		health.StoreProbe(store),
		health.AssetProbe(blobs),
		health.ProviderProbe(circuit),
	}
	if d.redis != nil {
		probes = append(probes, health.RedisProbe(d.redis))
	}
	d.monitor = health.NewMonitor(cfg, probes, logger)

	defs := pipeline.DefaultDefinitions(circuit, blobs, logger)
	d.executor = pipeline.NewExecutor(cfg, store, defs, d.publisher, d.notifier, logger)
	d.executor.SetObserver(d.metrics)

	d.gateway = gateway.New(cfg, store, d.billing, d.batches, d.monitor, logger)
	d.gateway.SetObserver(d.metrics)

	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock and launches the worker pool, the
// health loop, the optional Redis mirror, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.executor.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}

	go func() {
		defer close(d.done)
		_ = d.monitor.Run(runCtx)
	}()
	if broadcaster, ok := d.publisher.(*progress.RedisBroadcaster); ok {
		go func() {
			if err := broadcaster.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("redis mirror stopped", logging.Error(err))
			}
		}()
	}

	if err := d.server.start(runCtx); err != nil {
		cancel()
		d.executor.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.cfg.Workers.Count))
	return nil
}

// Stop halts intake, drains in-flight stages, and releases the lock.
// Claimed jobs are released back to the queue at their current stage.
func (d *Daemon) Stop() {
	wasRunning := d.running.Swap(false)
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.executor.Stop()
	if !wasRunning {
		return
	}
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.redis != nil {
		_ = d.redis.Close()
	}
	return d.store.Close()
}

// Status reports the runtime summary using the cached health report.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Workers:      d.cfg.Workers.Count,
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Health:       d.monitor.Last(),
	}
}

// Gateway exposes the submission gateway for in-process callers.
func (d *Daemon) Gateway() *gateway.Gateway { return d.gateway }

// Hub exposes the progress hub for event subscriptions.
func (d *Daemon) Hub() *progress.Hub { return d.hub }

func buildProvider(cfg *config.Config) (provider.Provider, error) {
	if cfg.Provider.BaseURL == "" {
		// No upstream configured: serve deterministic stub output so a
		// local install works end to end.
		return provider.NewStub(), nil
	}
	return provider.NewHTTP(provider.HTTPOptions{
		Name:    cfg.Provider.Name,
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Model:   cfg.Provider.Model,
		Timeout: time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
	})
}
