// Package cache implements a size-bounded persistent byte cache with
// access-time based eviction, built on the kvstore partitions.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	doccache "github.com/wolfeidau/doc-cache"
	"github.com/wolfeidau/doc-cache/kvstore"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// Partition names used by the engine.
const (
	PartitionContent = "content"
	PartitionMeta    = "meta"
)

// schemaVersion is the kvstore schema version for the current partition layout.
const schemaVersion = 1

// ErrFetch marks an upstream fetch that failed or returned no bytes
// during Preload.
var ErrFetch = errors.New("fetch failed")

// ByteSource fetches raw resource bytes for a cache key.
type ByteSource interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// BudgetProvider exposes the current cache byte budget. It is consulted on
// every prune pass so runtime configuration changes take effect immediately.
type BudgetProvider interface {
	CacheBudgetBytes() int64
}

// BudgetFunc adapts a function to the BudgetProvider interface.
type BudgetFunc func() int64

// CacheBudgetBytes implements BudgetProvider.
func (f BudgetFunc) CacheBudgetBytes() int64 { return f() }

// Engine is the content cache. It owns the content and meta partitions and
// enforces the byte budget by evicting the least-recently-accessed entries.
type Engine struct {
	path    string
	store   kvstore.Store
	source  ByteSource
	budget  BudgetProvider
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	// compress enables zstd encoding of content values at rest.
	compress bool

	group singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithStore replaces the default bbolt-backed store.
func WithStore(store kvstore.Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithCompression enables zstd compression of content values at rest.
// Size accounting always uses the uncompressed byte length.
func WithCompression(compress bool) Option {
	return func(e *Engine) {
		e.compress = compress
	}
}

// WithMetrics sets the metrics for the engine.
func WithMetrics(meter metric.Meter) Option {
	return func(e *Engine) {
		metrics, err := NewMetrics(meter)
		if err != nil {
			e.logger.Error("failed to create cache metrics", "error", err)
			return
		}
		e.metrics = metrics
	}
}

// New creates a cache engine persisting to the database at path. The engine
// is not usable until Initialize succeeds.
func New(path string, source ByteSource, budget BudgetProvider, opts ...Option) *Engine {
	e := &Engine{
		path:   path,
		source: source,
		budget: budget,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = kvstore.New(kvstore.WithLogger(e.logger))
	}
	return e
}

// Initialize opens the underlying store over the content and meta
// partitions. It must complete before any other engine operation; calls made
// earlier surface the store's InitError.
func (e *Engine) Initialize(_ context.Context) error {
	return e.store.Open(e.path, []string{PartitionContent, PartitionMeta}, schemaVersion)
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// GetMeta reads the metadata record for key. It returns nil on any failure,
// including absence; failures are logged but not surfaced.
func (e *Engine) GetMeta(ctx context.Context, key string) *Record {
	data, err := e.store.Get(ctx, PartitionMeta, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			e.logger.Debug("meta read failed", "key", key, "error", err)
		}
		return nil
	}

	rec, err := decodeRecord(data)
	if err != nil {
		e.logger.Debug("meta record malformed", "key", key, "error", err)
		return nil
	}
	return rec
}

// SetMeta force-writes a metadata record, overwriting any existing one.
func (e *Engine) SetMeta(ctx context.Context, key string, rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return e.store.Set(ctx, PartitionMeta, key, data, true)
}

// GetCache reads the content bytes for key. On success it refreshes the
// metadata record (last accessed time and size). It returns nil on any read
// failure or absence; callers cannot distinguish the two.
func (e *Engine) GetCache(ctx context.Context, key string) []byte {
	val, err := e.store.Get(ctx, PartitionContent, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			e.logger.Debug("content read failed", "key", key, "error", err)
		}
		e.metrics.recordMiss(ctx)
		return nil
	}

	header, body, err := DecodeFrame(val)
	if err != nil {
		e.logger.Warn("cached value malformed, treating as miss", "key", key, "error", err)
		e.metrics.recordMiss(ctx)
		return nil
	}

	sum := doccache.ChecksumBytes(body)
	if header.ContentHash != "" && header.ContentHash != sum.String() {
		e.logger.Warn("cached value failed checksum, treating as miss",
			"key", key,
			"want", header.ContentHash,
			"got", sum.ShortString())
		e.metrics.recordMiss(ctx)
		return nil
	}

	rec := &Record{
		SizeBytes:    int64(len(body)),
		LastAccessed: e.now(),
		Checksum:     sum.String(),
	}
	if err := e.SetMeta(ctx, key, rec); err != nil {
		// Recency refresh is best effort; the read itself succeeded.
		e.logger.Warn("failed to refresh access time", "key", key, "error", err)
	}

	e.metrics.recordHit(ctx)
	return body
}

// SetCache force-writes content and metadata for key, then prunes. This is
// the only operation that grows total cache size, so eviction runs here
// rather than lazily.
func (e *Engine) SetCache(ctx context.Context, key string, data []byte) error {
	now := e.now()
	sum := doccache.ChecksumBytes(data)

	encoding := EncodingIdentity
	if e.compress {
		encoding = EncodingZstd
	}

	framed, err := EncodeFrame(&FrameHeader{
		ContentLength: int64(len(data)),
		CachedAt:      now.UTC().Format(time.RFC3339Nano),
		ContentHash:   sum.String(),
		Encoding:      encoding,
	}, data)
	if err != nil {
		return fmt.Errorf("framing %q: %w", key, err)
	}

	if err := e.store.Set(ctx, PartitionContent, key, framed, true); err != nil {
		return fmt.Errorf("storing content for %q: %w", key, err)
	}

	rec := &Record{
		SizeBytes:    int64(len(data)),
		LastAccessed: now,
		Checksum:     sum.String(),
	}
	if err := e.SetMeta(ctx, key, rec); err != nil {
		return fmt.Errorf("storing meta for %q: %w", key, err)
	}

	e.metrics.recordWrite(ctx, int64(len(data)))
	return e.Prune(ctx)
}

// Preload ensures key is cached, fetching it from the byte source if
// necessary. Concurrent preloads for the same key share a single fetch.
func (e *Engine) Preload(ctx context.Context, key string) error {
	if data := e.GetCache(ctx, key); len(data) > 0 {
		return nil
	}

	// Detach the fill from any single caller so one caller timing out does
	// not cancel the fetch for other waiters.
	ch := e.group.DoChan(key, func() (any, error) {
		return nil, e.fill(context.WithoutCancel(ctx), key)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) fill(ctx context.Context, key string) error {
	e.metrics.recordFetch(ctx)

	data, err := e.source.Fetch(ctx, key)
	if err != nil {
		return fmt.Errorf("fetching %q: %w", key, errors.Join(ErrFetch, err))
	}
	if len(data) == 0 {
		return fmt.Errorf("fetching %q: %w: empty response", key, ErrFetch)
	}

	return e.SetCache(ctx, key, data)
}

// pruneEntry pairs a key with its parsed metadata for eviction ordering.
type pruneEntry struct {
	key string
	rec *Record
}

// Prune enforces the byte budget by deleting the least-recently-accessed
// entries until the total tracked size fits. The budget is re-read from the
// provider on every pass. A budget of zero or less disables eviction.
func (e *Engine) Prune(ctx context.Context) error {
	start := e.now()

	budget := e.budget.CacheBudgetBytes()
	if budget <= 0 {
		return nil
	}

	keys, err := e.store.ListKeys(ctx, PartitionMeta)
	if err != nil {
		return fmt.Errorf("listing meta keys: %w", err)
	}

	var (
		entries    []pruneEntry
		totalBytes int64
	)
	for _, key := range keys {
		data, err := e.store.Get(ctx, PartitionMeta, key)
		if err != nil {
			e.logger.Debug("skipping unreadable meta record", "key", key, "error", err)
			continue
		}
		rec, err := decodeRecord(data)
		if err != nil {
			e.logger.Debug("skipping malformed meta record", "key", key, "error", err)
			continue
		}
		entries = append(entries, pruneEntry{key: key, rec: rec})
		totalBytes += rec.SizeBytes
	}

	if totalBytes <= budget {
		return nil
	}

	// Oldest-accessed first; ties broken by key so the pass is deterministic.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].rec.LastAccessed.Equal(entries[j].rec.LastAccessed) {
			return entries[i].key < entries[j].key
		}
		return entries[i].rec.LastAccessed.Before(entries[j].rec.LastAccessed)
	})

	var (
		evicted      int
		evictedBytes int64
		errs         []error
	)
	for _, entry := range entries {
		if totalBytes <= budget {
			break
		}

		if err := e.store.DeleteMulti(ctx, entry.key, PartitionContent, PartitionMeta); err != nil {
			e.logger.Warn("failed to evict entry", "key", entry.key, "error", err)
			errs = append(errs, err)
			continue
		}

		totalBytes -= entry.rec.SizeBytes
		evicted++
		evictedBytes += entry.rec.SizeBytes

		e.logger.Debug("evicted entry",
			"key", entry.key,
			"size", entry.rec.SizeBytes,
			"last_accessed", entry.rec.LastAccessed)
	}

	e.metrics.recordPrune(ctx, evicted, evictedBytes, e.now().Sub(start))

	if evicted > 0 {
		e.logger.Info("prune complete",
			"evicted", evicted,
			"bytes_freed", evictedBytes,
			"total_bytes", totalBytes,
			"budget", budget)
	}

	return errors.Join(errs...)
}

// Stats holds aggregate cache statistics.
type Stats struct {
	Entries      int64
	TotalBytes   int64
	OldestAccess time.Time
	NewestAccess time.Time
}

// Stats returns aggregate statistics from the meta partition.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	keys, err := e.store.ListKeys(ctx, PartitionMeta)
	if err != nil {
		return nil, fmt.Errorf("listing meta keys: %w", err)
	}

	stats := &Stats{}
	for _, key := range keys {
		rec := e.GetMeta(ctx, key)
		if rec == nil {
			continue
		}

		stats.Entries++
		stats.TotalBytes += rec.SizeBytes

		if stats.OldestAccess.IsZero() || rec.LastAccessed.Before(stats.OldestAccess) {
			stats.OldestAccess = rec.LastAccessed
		}
		if rec.LastAccessed.After(stats.NewestAccess) {
			stats.NewestAccess = rec.LastAccessed
		}
	}

	return stats, nil
}
