package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"docforge/internal/config"
	"docforge/internal/logging"
	"docforge/internal/provider"
	"docforge/internal/services"
)

// The error rate only trips the circuit once a window has seen enough
// traffic to mean something.
const rateWindowMinRequests = 10

// CircuitProvider wraps a provider with a circuit breaker. A run of
// consecutive failures or an excessive error rate over the rolling
// window trips the circuit; while it is open, calls fail fast with a
// provider error instead of waiting on a dead upstream.
type CircuitProvider struct {
	inner   provider.Provider
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewCircuitProvider configures the breaker from the health settings.
func NewCircuitProvider(cfg *config.Config, inner provider.Provider, logger *slog.Logger) *CircuitProvider {
	log := logging.NewComponentLogger(logger, "circuit")
	threshold := cfg.Health.BreakerFailures
	if threshold == 0 {
		threshold = 3
	}
	cooldown := time.Duration(cfg.Health.BreakerCooldown) * time.Second
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	rateLimit := cfg.Health.ErrorRateLimit
	if rateLimit <= 0 || rateLimit > 1 {
		rateLimit = 0.5
	}

	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= threshold {
				return true
			}
			return counts.Requests >= rateWindowMinRequests &&
				errorRate(counts) >= rateLimit
		},
		// Rejections the caller earned (bad input, missing document,
		// auth) say nothing about upstream availability.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return errors.Is(err, services.ErrValidation) ||
				errors.Is(err, services.ErrNotFound) ||
				errors.Is(err, services.ErrPermission)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit state changed",
				logging.String("provider", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
				logging.String(logging.FieldEventType, "circuit_transition"))
		},
	}

	return &CircuitProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

// State reports the breaker state for health reports.
func (c *CircuitProvider) State() string {
	return c.breaker.State().String()
}

// Open reports whether calls are currently being rejected.
func (c *CircuitProvider) Open() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// ErrorRate returns the failure fraction over the breaker's current
// counting window, zero when no requests were seen.
func (c *CircuitProvider) ErrorRate() float64 {
	return errorRate(c.breaker.Counts())
}

func errorRate(counts gobreaker.Counts) float64 {
	if counts.Requests == 0 {
		return 0
	}
	return float64(counts.TotalFailures) / float64(counts.Requests)
}

func (c *CircuitProvider) Name() string { return c.inner.Name() }

func (c *CircuitProvider) Analyze(ctx context.Context, req provider.Request) (*provider.Analysis, error) {
	return execute(c, "analyze", func() (*provider.Analysis, error) {
		return c.inner.Analyze(ctx, req)
	})
}

func (c *CircuitProvider) Plan(ctx context.Context, req provider.Request, analysis *provider.Analysis) (*provider.Plan, error) {
	return execute(c, "plan", func() (*provider.Plan, error) {
		return c.inner.Plan(ctx, req, analysis)
	})
}

func (c *CircuitProvider) Generate(ctx context.Context, req provider.Request, plan *provider.Plan) (*provider.Generation, error) {
	return execute(c, "generate", func() (*provider.Generation, error) {
		return c.inner.Generate(ctx, req, plan)
	})
}

func (c *CircuitProvider) Compose(ctx context.Context, req provider.Request, generation *provider.Generation) (*provider.Composition, error) {
	return execute(c, "compose", func() (*provider.Composition, error) {
		return c.inner.Compose(ctx, req, generation)
	})
}

func execute[T any](c *CircuitProvider, operation string, call func() (*T, error)) (*T, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return call()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, services.Wrap(services.ErrProvider, "", operation,
				fmt.Sprintf("provider %s circuit open", c.inner.Name()), err)
		}
		return nil, err
	}
	out, ok := result.(*T)
	if !ok {
		return nil, services.Wrap(services.ErrInternal, "", operation, "unexpected circuit result type", nil)
	}
	return out, nil
}
