package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docforge/internal/queue"
	"docforge/internal/services"
)

// Static is the built-in tier directory with in-memory usage counters.
// It is the default Service until an external billing system is wired in.
type Static struct {
	mu    sync.Mutex
	plans map[string]Plan
	usage map[string][]UsageRecord
	clock func() time.Time
}

// DefaultPlans returns the stock tier directory.
func DefaultPlans() map[string]Plan {
	return map[string]Plan{
		"free":    {Name: "free", Priority: queue.PriorityLow, BatchLimit: 1, MonthlyQuota: 10, MaxQueueDepth: 20},
		"basic":   {Name: "basic", Priority: queue.PriorityNormal, BatchLimit: 3, MonthlyQuota: 100, MaxQueueDepth: 50},
		"pro":     {Name: "pro", Priority: queue.PriorityNormal, BatchLimit: 5, MonthlyQuota: 500, MaxQueueDepth: 100},
		"premium": {Name: "premium", Priority: queue.PriorityHigh, BatchLimit: 10, MonthlyQuota: -1, MaxQueueDepth: 200},
	}
}

// NewStatic builds a Static service. A nil plan map uses DefaultPlans.
func NewStatic(plans map[string]Plan) *Static {
	if plans == nil {
		plans = DefaultPlans()
	}
	return &Static{
		plans: plans,
		usage: make(map[string][]UsageRecord),
		clock: time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *Static) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *Static) Plan(_ context.Context, tier string) (Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[tier]
	if !ok {
		return Plan{}, services.Wrap(services.ErrValidation, "", "billing", fmt.Sprintf("unknown tier %q", tier), nil)
	}
	return plan, nil
}

func (s *Static) Remaining(_ context.Context, userID, tier string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[tier]
	if !ok {
		return 0, services.Wrap(services.ErrValidation, "", "billing", fmt.Sprintf("unknown tier %q", tier), nil)
	}
	if plan.MonthlyQuota < 0 {
		return -1, nil
	}
	used := 0
	cutoff := monthStart(s.clock().UTC())
	for _, rec := range s.usage[userID] {
		if !rec.CreatedAt.Before(cutoff) {
			used++
		}
	}
	remaining := plan.MonthlyQuota - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *Static) Record(_ context.Context, rec UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	s.usage[rec.UserID] = append(s.usage[rec.UserID], rec)
	return nil
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
