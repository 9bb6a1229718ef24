package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/findata/cache"
	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/provider"
)

// FetchWithMerge 并发尝试所有可用数据源，把各家的部分字段合并成一条更完整的记录。
// 成功数达到 minProviders 时，按优先级排好序的成功结果交给调用方的 merge 函数，
// 结果标记 source="merged" 并写穿缓存；不足 minProviders 时退回陈旧缓存或空结果。
// 适合基本面这类各数据源字段互补的场景
func (o *Orchestrator) FetchWithMerge(ctx context.Context, symbol string, providerNames []string, merge MergeFunc, minProviders int, tier cache.Tier) *FetchResult {
	start := o.now()
	key := cache.Key(cache.DataTypeFundamentals, symbol)
	ttl := o.ttl.TTLFor(cache.DataTypeFundamentals, tier)

	result := &FetchResult{
		Metadata: Metadata{RequestID: o.newID(), ProvidersAttempted: []string{}},
	}
	logger := o.logger.With(
		clog.String("request_id", result.Metadata.RequestID),
		clog.String("symbol", symbol))

	defer func() {
		result.Metadata.TotalDuration = o.now().Sub(start)
		o.count(ctx, "merge", result)
	}()

	if minProviders < 1 {
		minProviders = 1
	}

	staleRec, staleAge, hasStale := o.cacheProbe(ctx, key)
	if hasStale && staleAge < ttl {
		result.Data = staleRec
		result.Source = SourceCache
		result.Cached = true
		result.Age = staleAge
		return result
	}

	candidates := o.registry.ByPriority(providerNames)

	// successes 按候选位置存放，保证交给 merge 的顺序由优先级决定而非到达时间
	successes := make([]*provider.Record, len(candidates))
	var mu sync.Mutex
	var g errgroup.Group

	for i, cfg := range candidates {
		client, ok := o.clients[cfg.Name]
		if !ok {
			continue
		}
		result.Metadata.ProvidersAttempted = append(result.Metadata.ProvidersAttempted, cfg.Name)

		i, cfg := i, cfg
		g.Go(func() error {
			if gateErr := o.gate(ctx, cfg.Name); gateErr != nil {
				mu.Lock()
				if gateErr.Code == provider.CodeCircuitOpen {
					result.Metadata.CircuitBreakerTriggered = true
				}
				result.Errors = append(result.Errors, gateErr)
				mu.Unlock()
				return nil
			}

			rec, perr := o.fetchOne(ctx, cfg, client, symbol)
			mu.Lock()
			defer mu.Unlock()
			if perr != nil {
				result.Errors = append(result.Errors, perr)
				return nil
			}
			successes[i] = rec
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]*provider.Record, 0, len(candidates))
	for _, rec := range successes {
		if rec != nil {
			merged = append(merged, rec)
		}
	}

	if len(merged) < minProviders {
		logger.Info("merge below quorum",
			clog.Int("succeeded", len(merged)),
			clog.Int("min_providers", minProviders))
		return o.degrade(ctx, result, staleRec, staleAge, hasStale, logger)
	}

	data := merge(merged)
	o.writeThrough(ctx, key, data, ttl, logger)
	result.Data = data
	result.Source = SourceMerged
	return result
}

// PreferFirstNonMissing 常用的合并策略：以最高优先级数据源的记录为底，
// 缺失的字段依次用后续数据源补齐
func PreferFirstNonMissing(records []*provider.Record) *provider.Record {
	if len(records) == 0 {
		return nil
	}

	base := *records[0]
	base.Source = SourceMerged
	for _, rec := range records[1:] {
		fillMissing(&base, rec)
	}
	return &base
}

func fillMissing(dst, src *provider.Record) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Exchange == "" {
		dst.Exchange = src.Exchange
	}
	if dst.Currency == "" {
		dst.Currency = src.Currency
	}

	fields := []struct {
		dst *provider.Float
		src provider.Float
	}{
		{&dst.Price, src.Price},
		{&dst.Open, src.Open},
		{&dst.High, src.High},
		{&dst.Low, src.Low},
		{&dst.PreviousClose, src.PreviousClose},
		{&dst.Change, src.Change},
		{&dst.ChangePercent, src.ChangePercent},
		{&dst.Volume, src.Volume},
		{&dst.MarketCap, src.MarketCap},
		{&dst.PERatio, src.PERatio},
		{&dst.EPS, src.EPS},
		{&dst.DividendYield, src.DividendYield},
	}
	for _, f := range fields {
		if f.dst.Missing() && !f.src.Missing() {
			*f.dst = f.src
		}
	}
}
