package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"docforge/internal/queue"
)

// QueueCollector exports job counts per status as const metrics read
// from the store at scrape time, so depth is never stale.
type QueueCollector struct {
	store *queue.Store

	depthDesc *prometheus.Desc
}

func NewQueueCollector(store *queue.Store) *QueueCollector {
	return &QueueCollector{
		store: store,
		depthDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "queue_depth"),
			"Jobs in the queue by status.",
			[]string{"status"}, nil),
	}
}

func (c *QueueCollector) Describe(d chan<- *prometheus.Desc) {
	d <- c.depthDesc
}

func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	counts, err := c.store.CountsByStatus(ctx)
	if err != nil {
		// A failed scrape simply reports nothing for this collector.
		return
	}
	for _, status := range queue.AllStatuses() {
		ch <- prometheus.MustNewConstMetric(c.depthDesc, prometheus.GaugeValue,
			float64(counts[status]), string(status))
	}
}
