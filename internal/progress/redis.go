package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"docforge/internal/logging"
)

// RedisBroadcaster decorates a local Publisher with Redis pub/sub so
// every daemon process sees every job's event stream. Events published
// locally are mirrored to one channel per job; Run consumes the mirror
// channels and replays events that originated elsewhere into the local
// publisher.
type RedisBroadcaster struct {
	local  Publisher
	client *redis.Client
	prefix string
	origin string
	logger *slog.Logger
}

// NewRedisBroadcaster wraps local with a Redis mirror. origin must be
// unique per process; it is stamped onto outgoing events so Run can
// discard echoes of this process's own publishes.
func NewRedisBroadcaster(local Publisher, client *redis.Client, prefix, origin string, logger *slog.Logger) *RedisBroadcaster {
	if prefix == "" {
		prefix = "docforge:progress"
	}
	return &RedisBroadcaster{
		local:  local,
		client: client,
		prefix: strings.TrimRight(prefix, ":"),
		origin: origin,
		logger: logging.NewComponentLogger(logger, "progress-redis"),
	}
}

func (b *RedisBroadcaster) channel(jobID string) string {
	return b.prefix + ":" + jobID
}

// Publish delivers locally first, then mirrors to Redis. A Redis outage
// never blocks or fails the pipeline; the local stream stays intact.
func (b *RedisBroadcaster) Publish(ctx context.Context, event Event) {
	b.local.Publish(ctx, event)

	event.Origin = b.origin
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("encode progress event failed", logging.Error(err))
		return
	}
	if err := b.client.Publish(ctx, b.channel(event.JobID), payload).Err(); err != nil {
		b.logger.Warn("mirror progress event failed",
			logging.String(logging.FieldJobID, event.JobID),
			logging.Error(err))
	}
}

// Run subscribes to the mirror channels and replays remote events into
// the local publisher until the context is cancelled.
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, b.prefix+":*")
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(message.Payload), &event); err != nil {
				b.logger.Warn("decode mirrored progress event failed", logging.Error(err))
				continue
			}
			if event.Origin == b.origin {
				continue
			}
			b.local.Publish(ctx, event)
		}
	}
}
