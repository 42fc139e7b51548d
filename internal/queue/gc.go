package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const dlqPurgeTimeout = 2 * time.Minute

// GCMetrics tracks dead-letter purges.
type GCMetrics struct {
	Purged      prometheus.Counter
	Failures    prometheus.Counter
	LastSuccess prometheus.Gauge
}

// NewGCMetrics registers dead-letter purge metrics with reg.
func NewGCMetrics(reg prometheus.Registerer) *GCMetrics {
	f := promauto.With(reg)
	return &GCMetrics{
		Purged: f.NewCounter(prometheus.CounterOpts{
			Name: "queue_dlq_purged_total",
			Help: "Total number of dead-lettered jobs dropped after the retention window",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "queue_dlq_purge_failures_total",
			Help: "Total number of failed dead-letter purge runs",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "queue_dlq_last_purge_timestamp_seconds",
			Help: "Unix time of the last successful dead-letter purge",
		}),
	}
}

// GarbageCollector drops dead-lettered classify_file and delete_external_upload
// jobs once they are past retention. Abandoned upload deletions are still picked
// up by the worker's upload sweep, so nothing is lost by dropping them.
type GarbageCollector struct {
	dlqPurger DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
	metrics   *GCMetrics
	now       func() time.Time
}

// NewGarbageCollector creates a collector that purges through purger every interval.
// metrics may be nil.
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, metrics *GCMetrics, logger *zap.Logger) *GarbageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GarbageCollector{
		dlqPurger: purger,
		interval:  interval,
		retention: retention,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Start purges once immediately, then every interval until ctx is cancelled.
func (gc *GarbageCollector) Start(ctx context.Context) error {
	gc.runOnce(ctx)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			gc.runOnce(ctx)
		}
	}
}

func (gc *GarbageCollector) runOnce(ctx context.Context) {
	if _, err := gc.collect(ctx); err != nil && ctx.Err() == nil {
		gc.logger.Warn("dlq_gc_failed", zap.Error(err))
	}
}

// collect purges dead-lettered jobs older than retention and returns how many were dropped.
func (gc *GarbageCollector) collect(ctx context.Context) (int, error) {
	if gc.dlqPurger == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dlqPurgeTimeout)
	defer cancel()

	n, err := gc.dlqPurger.PurgeOlderThan(ctx, gc.retention)
	if n > 0 && gc.metrics != nil {
		gc.metrics.Purged.Add(float64(n))
	}
	if err != nil {
		if gc.metrics != nil {
			gc.metrics.Failures.Inc()
		}
		return n, fmt.Errorf("DLQ purge after %d jobs: %w", n, err)
	}
	if gc.metrics != nil {
		gc.metrics.LastSuccess.Set(float64(gc.now().Unix()))
	}
	if n > 0 {
		gc.logger.Info("dlq_gc_purged",
			zap.Int("count", n),
			zap.Duration("retention", gc.retention),
		)
	}
	return n, nil
}
