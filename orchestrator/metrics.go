package orchestrator

// Metrics 指标常量定义
const (
	// MetricFetches 编排调用总数 (Counter)
	MetricFetches = "orchestrator_fetches_total"

	// MetricCacheHits 新鲜缓存命中数 (Counter)
	MetricCacheHits = "orchestrator_cache_hits_total"

	// MetricStaleFallbacks 陈旧缓存兜底次数 (Counter)
	MetricStaleFallbacks = "orchestrator_stale_fallbacks_total"

	// MetricDuration 编排调用耗时分布，单位秒 (Histogram)
	MetricDuration = "orchestrator_fetch_duration_seconds"

	// LabelStrategy 策略标签 (fallback/merge/batch)
	LabelStrategy = "strategy"

	// LabelOutcome 结果标签 (fresh/provider/merged/stale/empty)
	LabelOutcome = "outcome"
)
