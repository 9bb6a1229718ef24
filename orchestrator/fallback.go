package orchestrator

import (
	"context"
	"time"

	"github.com/ceyewan/findata/cache"
	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/metrics"
	"github.com/ceyewan/findata/provider"
	"github.com/ceyewan/findata/retry"
)

// FetchWithFallback 按优先级逐个尝试数据源，第一个成功即返回。
// 调用流程：新鲜缓存命中直接短路 → 逐数据源过限流、熔断两道闸 →
// 重试执行器包裹 FetchOne → 成功写穿缓存并返回 → 全部失败退回陈旧缓存。
// 同键并发调用通过 singleflight 合并为一次执行
func (o *Orchestrator) FetchWithFallback(ctx context.Context, symbol string, providerNames []string, tier cache.Tier) *FetchResult {
	key := cache.Key(cache.DataTypeQuote, symbol)
	ttl := o.ttl.TTLFor(cache.DataTypeQuote, tier)

	v, _, shared := o.group.Do(key+"|"+string(tier), func() (any, error) {
		return o.fetchWithFallback(ctx, symbol, providerNames, key, ttl), nil
	})

	result := *(v.(*FetchResult))
	result.Metadata.Deduplicated = shared
	return &result
}

func (o *Orchestrator) fetchWithFallback(ctx context.Context, symbol string, providerNames []string, key string, ttl time.Duration) *FetchResult {
	start := o.now()
	result := &FetchResult{
		Metadata: Metadata{RequestID: o.newID(), ProvidersAttempted: []string{}},
	}
	logger := o.logger.With(
		clog.String("request_id", result.Metadata.RequestID),
		clog.String("symbol", symbol))

	defer func() {
		result.Metadata.TotalDuration = o.now().Sub(start)
		o.count(ctx, "fallback", result)
	}()

	// 缓存探测一次，既判新鲜命中也为最终兜底留底
	staleRec, staleAge, hasStale := o.cacheProbe(ctx, key)
	if hasStale && staleAge < ttl {
		logger.Debug("fresh cache hit", clog.Duration("age", staleAge))
		result.Data = staleRec
		result.Source = SourceCache
		result.Cached = true
		result.Age = staleAge
		return result
	}

	for _, cfg := range o.registry.ByPriority(providerNames) {
		client, ok := o.clients[cfg.Name]
		if !ok {
			continue
		}
		result.Metadata.ProvidersAttempted = append(result.Metadata.ProvidersAttempted, cfg.Name)

		if gateErr := o.gate(ctx, cfg.Name); gateErr != nil {
			if gateErr.Code == provider.CodeCircuitOpen {
				result.Metadata.CircuitBreakerTriggered = true
			}
			result.Errors = append(result.Errors, gateErr)
			continue
		}

		rec, perr := o.fetchOne(ctx, cfg, client, symbol)
		if perr != nil {
			logger.Warn("provider failed",
				clog.String("provider", cfg.Name),
				clog.String("code", string(perr.Code)),
				clog.Error(perr))
			result.Errors = append(result.Errors, perr)
			continue
		}

		// 第一个成功短路，不再尝试剩余数据源
		o.writeThrough(ctx, key, rec, ttl, logger)
		result.Data = rec
		result.Source = cfg.Name
		return result
	}

	return o.degrade(ctx, result, staleRec, staleAge, hasStale, logger)
}

// gate 依次过限流器与熔断器，被拒时返回已分类的错误
func (o *Orchestrator) gate(ctx context.Context, name string) *provider.Error {
	allowed, err := o.limiter.TryAcquire(ctx, name)
	if err != nil {
		return provider.Classify(name, err)
	}
	if !allowed {
		return provider.NewError(name, provider.CodeRateLimited, "local quota exhausted", nil)
	}

	if !o.breaker.Allow(name) {
		return provider.NewError(name, provider.CodeCircuitOpen, "circuit breaker open", nil)
	}
	return nil
}

// fetchOne 重试执行器包裹单标的调用，并向熔断器汇报结果。
// 超时同样计为熔断失败
func (o *Orchestrator) fetchOne(ctx context.Context, cfg *provider.Config, client provider.Client, symbol string) (*provider.Record, *provider.Error) {
	rec, err := retry.Do(ctx, cfg.Retry, func(ctx context.Context) (*provider.Record, error) {
		return client.FetchOne(ctx, symbol)
	})
	if err != nil {
		o.breaker.RecordFailure(cfg.Name)
		return nil, provider.Classify(cfg.Name, err)
	}
	o.breaker.RecordSuccess(cfg.Name)
	return rec, nil
}

// cacheProbe 读取缓存条目（不区分新鲜陈旧），调用方自行判断新鲜度
func (o *Orchestrator) cacheProbe(ctx context.Context, key string) (*provider.Record, time.Duration, bool) {
	var rec provider.Record
	age, err := o.cache.GetStale(ctx, key, &rec)
	if err != nil {
		return nil, 0, false
	}
	return &rec, age, true
}

// writeThrough 成功结果写穿缓存，写失败只记日志不影响返回
func (o *Orchestrator) writeThrough(ctx context.Context, key string, rec *provider.Record, ttl time.Duration, logger clog.Logger) {
	if err := o.cache.Set(ctx, key, rec, ttl); err != nil {
		logger.Warn("cache write-through failed", clog.Error(err))
	}
}

// degrade 全部数据源失败后的降级路径：有陈旧缓存用陈旧缓存，没有则返回空结果
func (o *Orchestrator) degrade(ctx context.Context, result *FetchResult, staleRec *provider.Record, staleAge time.Duration, hasStale bool, logger clog.Logger) *FetchResult {
	if hasStale {
		logger.Info("all providers failed, serving stale cache",
			clog.Duration("age", staleAge),
			clog.Int("errors", len(result.Errors)))
		result.Data = staleRec
		result.Source = SourceCache
		result.Cached = true
		result.Age = staleAge
		return result
	}

	logger.Warn("all providers failed, no cache available",
		clog.Int("errors", len(result.Errors)))
	return result
}

func (o *Orchestrator) count(ctx context.Context, strategy string, result *FetchResult) {
	if o.fetchCounter == nil {
		return
	}
	outcome := "empty"
	switch {
	case result.Cached && result.Data != nil && len(result.Errors) == 0:
		outcome = "fresh"
		if o.cacheHitCounter != nil {
			o.cacheHitCounter.Inc(ctx, metrics.L(LabelStrategy, strategy))
		}
	case result.Cached && result.Data != nil:
		outcome = "stale"
		if o.staleCounter != nil {
			o.staleCounter.Inc(ctx, metrics.L(LabelStrategy, strategy))
		}
	case result.Source == SourceMerged:
		outcome = "merged"
	case result.Data != nil:
		outcome = "provider"
	}
	o.fetchCounter.Inc(ctx,
		metrics.L(LabelStrategy, strategy),
		metrics.L(LabelOutcome, outcome))
	if o.durationHist != nil {
		o.durationHist.Record(ctx, result.Metadata.TotalDuration.Seconds(),
			metrics.L(LabelStrategy, strategy))
	}
}
