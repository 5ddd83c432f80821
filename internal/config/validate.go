package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateHealth(); err != nil {
		return err
	}
	if err := c.validateTelemetry(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.Count <= 0 {
		return errors.New("workers.count must be positive")
	}
	return ensurePositiveMap(map[string]int{
		"workers.queue_poll_interval":  c.Workers.QueuePollInterval,
		"workers.error_retry_interval": c.Workers.ErrorRetryInterval,
		"workers.heartbeat_interval":   c.Workers.HeartbeatInterval,
		"workers.heartbeat_timeout":    c.Workers.HeartbeatTimeout,
	})
}

func (c *Config) validateQueue() error {
	return ensurePositiveMap(map[string]int{
		"queue.max_depth_per_tier":    c.Queue.MaxDepthPerTier,
		"queue.average_stage_seconds": c.Queue.AverageStageSeconds,
	})
}

func (c *Config) validateStages() error {
	return ensurePositiveMap(map[string]int{
		"stages.upload_confirm_timeout": c.Stages.UploadConfirmTimeout,
		"stages.analysis_timeout":       c.Stages.AnalysisTimeout,
		"stages.planning_timeout":       c.Stages.PlanningTimeout,
		"stages.generation_timeout":     c.Stages.GenerationTimeout,
		"stages.composition_timeout":    c.Stages.CompositionTimeout,
	})
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be positive")
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("retry.multiplier must be at least 1")
	}
	return ensurePositiveMap(map[string]int{
		"retry.initial_delay": c.Retry.InitialDelay,
		"retry.max_delay":     c.Retry.MaxDelay,
	})
}

func (c *Config) validateHealth() error {
	if c.Health.ErrorRateLimit <= 0 || c.Health.ErrorRateLimit > 1 {
		return errors.New("health.error_rate_limit must be between 0 and 1")
	}
	if c.Health.BreakerFailures == 0 {
		return errors.New("health.breaker_failures must be positive")
	}
	return ensurePositiveMap(map[string]int{
		"health.probe_interval":  c.Health.ProbeInterval,
		"health.probe_timeout":   c.Health.ProbeTimeout,
		"health.breaker_cooldown": c.Health.BreakerCooldown,
	})
}

func (c *Config) validateTelemetry() error {
	switch c.Telemetry.Exporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("telemetry.exporter: unsupported value %q", c.Telemetry.Exporter)
	}
	if c.Telemetry.Enabled && c.Telemetry.Exporter == "otlp" && c.Telemetry.OTLPEndpoint == "" {
		return errors.New("telemetry.otlp_endpoint must be set when telemetry.exporter is otlp")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
