package cache

import (
	"context"

	"github.com/ceyewan/findata/metrics"
)

// Metrics 指标常量定义
const (
	// MetricHits 新鲜命中数 (Counter)
	MetricHits = "cache_hits_total"

	// MetricMisses 未命中数，含逻辑过期 (Counter)
	MetricMisses = "cache_misses_total"

	// MetricStaleHits 陈旧路径命中数 (Counter)
	MetricStaleHits = "cache_stale_hits_total"

	// MetricSets 写入数 (Counter)
	MetricSets = "cache_sets_total"

	// LabelBackend 后端标签 (standalone/distributed)
	LabelBackend = "backend"
)

// cacheCounters 两个后端共用的指标组，meter 未注入时所有方法为空操作
type cacheCounters struct {
	hits      metrics.Counter
	misses    metrics.Counter
	staleHits metrics.Counter
	sets      metrics.Counter
	backend   metrics.Label
}

func newCacheCounters(meter metrics.Meter, backend string) cacheCounters {
	c := cacheCounters{backend: metrics.L(LabelBackend, backend)}
	if meter == nil {
		return c
	}
	c.hits, _ = meter.Counter(MetricHits, "Number of fresh cache hits")
	c.misses, _ = meter.Counter(MetricMisses, "Number of cache misses")
	c.staleHits, _ = meter.Counter(MetricStaleHits, "Number of stale cache hits")
	c.sets, _ = meter.Counter(MetricSets, "Number of cache writes")
	return c
}

func (c cacheCounters) hit(ctx context.Context) {
	if c.hits != nil {
		c.hits.Inc(ctx, c.backend)
	}
}

func (c cacheCounters) miss(ctx context.Context) {
	if c.misses != nil {
		c.misses.Inc(ctx, c.backend)
	}
}

func (c cacheCounters) staleHit(ctx context.Context) {
	if c.staleHits != nil {
		c.staleHits.Inc(ctx, c.backend)
	}
}

func (c cacheCounters) set(ctx context.Context) {
	if c.sets != nil {
		c.sets.Inc(ctx, c.backend)
	}
}
