package progress

import (
	"context"
	"log/slog"
	"sync"

	"docforge/internal/logging"
)

const defaultSubscriberBuffer = 16

// Subscription is one consumer's view of a job's event stream. The
// channel closes after a terminal event or on Unsubscribe.
type Subscription struct {
	hub    *Hub
	jobID  string
	events chan Event
	once   sync.Once
}

// Events returns the receive channel for this subscription.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Unsubscribe detaches the consumer. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.hub.remove(s)
}

// Hub is the in-process broadcaster. Publishing is non-blocking: a
// subscriber whose buffer is full misses that event, and events for
// jobs with no subscribers are dropped after updating the snapshot.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	last   map[string]Event
	buffer int
	logger *slog.Logger
	onDrop func(count int)
}

// NewHub creates an empty broadcaster. buffer sizes each subscriber's
// event channel; non-positive values fall back to the default.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		last:   make(map[string]Event),
		buffer: buffer,
		logger: logging.NewComponentLogger(logger, "progress"),
	}
}

// Subscribe registers a consumer for one job's events. If the hub has
// already seen an event for the job, it is delivered first as a
// snapshot of current state.
func (h *Hub) Subscribe(jobID string) *Subscription {
	sub := &Subscription{
		hub:    h,
		jobID:  jobID,
		events: make(chan Event, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if snapshot, ok := h.last[jobID]; ok {
		sub.events <- snapshot
		if snapshot.Terminal() {
			sub.once.Do(func() { close(sub.events) })
			return sub
		}
	}
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[jobID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers an event to every subscriber of the job. Terminal
// events close all subscriber channels and clear the snapshot.
func (h *Hub) Publish(_ context.Context, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last[event.JobID] = event
	dropped := 0
	for sub := range h.subs[event.JobID] {
		select {
		case sub.events <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Debug("dropped progress events for slow subscribers",
			logging.String(logging.FieldJobID, event.JobID),
			logging.Int("dropped", dropped))
		if h.onDrop != nil {
			h.onDrop(dropped)
		}
	}

	if event.Terminal() {
		for sub := range h.subs[event.JobID] {
			sub.once.Do(func() { close(sub.events) })
		}
		delete(h.subs, event.JobID)
		delete(h.last, event.JobID)
	}
}

// OnDrop registers a callback invoked with the number of events a
// publish could not deliver. Set it before the hub starts receiving
// traffic.
func (h *Hub) OnDrop(fn func(count int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = fn
}

// SubscriberCount reports how many consumers are attached to a job.
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.jobID]
	if !ok {
		return
	}
	if _, member := set[sub]; !member {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.jobID)
	}
	sub.once.Do(func() { close(sub.events) })
}
