package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docforge/internal/config"
	"docforge/internal/logging"
)

// Monitor runs dependency probes in parallel and caches the latest
// report for the admission path and the health endpoint.
type Monitor struct {
	cfg    *config.Config
	logger *slog.Logger
	probes []Probe

	mu   sync.RWMutex
	last Report
}

// NewMonitor builds a monitor over the given probes.
func NewMonitor(cfg *config.Config, probes []Probe, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "health"),
		probes: probes,
		last:   Report{Status: StatusHealthy, CheckedAt: time.Now().UTC()},
	}
}

// Check probes every dependency concurrently, each bounded by the
// configured probe timeout, and returns the aggregated report.
func (m *Monitor) Check(ctx context.Context) Report {
	timeout := time.Duration(m.cfg.Health.ProbeTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	deps := make([]Dependency, len(m.probes))
	var wg sync.WaitGroup
	wg.Add(len(m.probes))
	for i, probe := range m.probes {
		go func(i int, probe Probe) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			started := time.Now()
			err := probe.Check(probeCtx)
			dep := Dependency{
				Name:     probe.Name,
				Healthy:  err == nil,
				Critical: probe.Critical,
				Latency:  time.Since(started),
			}
			if err != nil {
				dep.Detail = err.Error()
			}
			if probe.Circuit != nil {
				dep.Circuit = probe.Circuit()
			}
			if probe.Rate != nil {
				dep.ErrorRate = probe.Rate()
			}
			deps[i] = dep
		}(i, probe)
	}
	wg.Wait()

	report := Report{
		Status:       aggregate(deps),
		CheckedAt:    time.Now().UTC(),
		Dependencies: deps,
	}
	m.record(report)
	return report
}

// Last returns the most recent report without probing.
func (m *Monitor) Last() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Run re-probes on the configured interval until the context ends.
func (m *Monitor) Run(ctx context.Context) error {
	interval := time.Duration(m.cfg.Health.ProbeInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *Monitor) record(report Report) {
	m.mu.Lock()
	previous := m.last.Status
	m.last = report
	m.mu.Unlock()

	if previous == report.Status {
		return
	}
	attrs := []logging.Attr{
		logging.String("previous", previous),
		logging.String("current", report.Status),
		logging.String(logging.FieldEventType, "health_transition"),
	}
	for _, dep := range report.Dependencies {
		if !dep.Healthy {
			attrs = append(attrs, logging.String("failing_"+dep.Name, dep.Detail))
		}
	}
	if report.Status == StatusHealthy {
		m.logger.Info("health recovered", logging.Args(attrs...)...)
	} else {
		m.logger.Warn("health transition", logging.Args(attrs...)...)
	}
}
