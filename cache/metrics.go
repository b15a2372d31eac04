package cache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds cache-related OpenTelemetry metric instruments.
type Metrics struct {
	hitsTotal         metric.Int64Counter
	missesTotal       metric.Int64Counter
	fetchesTotal      metric.Int64Counter
	writeSize         metric.Float64Histogram
	pruneRunsTotal    metric.Int64Counter
	pruneDuration     metric.Float64Histogram
	evictionsTotal    metric.Int64Counter
	evictedBytesTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	hitsTotal, err := meter.Int64Counter(
		"doc_cache_hits_total",
		metric.WithDescription("Total number of cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	missesTotal, err := meter.Int64Counter(
		"doc_cache_misses_total",
		metric.WithDescription("Total number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	fetchesTotal, err := meter.Int64Counter(
		"doc_cache_fetches_total",
		metric.WithDescription("Total number of upstream fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	writeSize, err := meter.Float64Histogram(
		"doc_cache_write_size_bytes",
		metric.WithDescription("Size of content written to the cache"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864),
	)
	if err != nil {
		return nil, err
	}

	pruneRunsTotal, err := meter.Int64Counter(
		"doc_cache_prune_runs_total",
		metric.WithDescription("Total number of prune passes"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	pruneDuration, err := meter.Float64Histogram(
		"doc_cache_prune_duration_seconds",
		metric.WithDescription("Prune pass duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	evictionsTotal, err := meter.Int64Counter(
		"doc_cache_evictions_total",
		metric.WithDescription("Total number of entries evicted by prune"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	evictedBytesTotal, err := meter.Int64Counter(
		"doc_cache_evicted_bytes_total",
		metric.WithDescription("Total bytes reclaimed by prune"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		hitsTotal:         hitsTotal,
		missesTotal:       missesTotal,
		fetchesTotal:      fetchesTotal,
		writeSize:         writeSize,
		pruneRunsTotal:    pruneRunsTotal,
		pruneDuration:     pruneDuration,
		evictionsTotal:    evictionsTotal,
		evictedBytesTotal: evictedBytesTotal,
	}, nil
}

// The record helpers tolerate a nil receiver so the engine can run without
// metrics configured.

func (m *Metrics) recordHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.hitsTotal.Add(ctx, 1)
}

func (m *Metrics) recordMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.missesTotal.Add(ctx, 1)
}

func (m *Metrics) recordFetch(ctx context.Context) {
	if m == nil {
		return
	}
	m.fetchesTotal.Add(ctx, 1)
}

func (m *Metrics) recordWrite(ctx context.Context, size int64) {
	if m == nil {
		return
	}
	m.writeSize.Record(ctx, float64(size))
}

func (m *Metrics) recordPrune(ctx context.Context, evicted int, evictedBytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.pruneRunsTotal.Add(ctx, 1)
	m.pruneDuration.Record(ctx, duration.Seconds())
	m.evictionsTotal.Add(ctx, int64(evicted))
	m.evictedBytesTotal.Add(ctx, evictedBytes)
}
