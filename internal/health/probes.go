package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"docforge/internal/assets"
	"docforge/internal/queue"
)

// StoreProbe verifies the job store answers queries. The store is
// critical: without it the daemon can neither admit nor run work.
func StoreProbe(store *queue.Store) Probe {
	return Probe{
		Name:     "store",
		Critical: true,
		Check:    store.Ping,
	}
}

// AssetProbe writes and removes a marker blob to prove the asset store
// is reachable and writable. Asset writes happen late in the pipeline
// and retry, so a blip only degrades the service.
func AssetProbe(blobs assets.Store) Probe {
	return Probe{
		Name:     "assets",
		Critical: false,
		Check: func(ctx context.Context) error {
			key := fmt.Sprintf("health/probe-%d", time.Now().UnixNano())
			if _, err := blobs.Put(ctx, key, strings.NewReader("ok")); err != nil {
				return err
			}
			return blobs.Delete(ctx, key)
		},
	}
}

// ProviderProbe reports the enhancement provider as unhealthy while its
// circuit is open. It never issues a real provider call; the breaker
// already tracks live traffic.
func ProviderProbe(circuit *CircuitProvider) Probe {
	return Probe{
		Name:     "provider",
		Critical: false,
		Circuit:  circuit.State,
		Rate:     circuit.ErrorRate,
		Check: func(ctx context.Context) error {
			if circuit.Open() {
				return errors.New("circuit open")
			}
			return nil
		},
	}
}

// RedisProbe checks the progress broadcaster's connection. Loss of the
// mirror degrades cross-node progress but never blocks the pipeline.
func RedisProbe(client *redis.Client) Probe {
	return Probe{
		Name:     "broadcaster",
		Critical: false,
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}
