package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/findata/cache"
	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/metrics"
	"github.com/ceyewan/findata/provider"
	"github.com/ceyewan/findata/retry"
)

// BatchFetch 单数据源的批量路径：标的列表按数据源的 BatchSize 分片，
// 分片以有限并发发出，结果合并成一张映射。某个分片失败只降级该分片内的标的
// （逐键记录错误或退回各自的陈旧缓存），不会使整批失败。
// 每个标的的缓存独立检查，新鲜命中的标的不会出现在任何网络调用里
func (o *Orchestrator) BatchFetch(ctx context.Context, symbols []string, providerName string, tier cache.Tier) *BatchResult {
	start := o.now()
	ttl := o.ttl.TTLFor(cache.DataTypeQuote, tier)

	result := &BatchResult{
		Data:     make(map[string]*provider.Record),
		Errors:   make(map[string]*provider.Error),
		Metadata: Metadata{RequestID: o.newID(), ProvidersAttempted: []string{}},
	}
	logger := o.logger.With(
		clog.String("request_id", result.Metadata.RequestID),
		clog.String("provider", providerName))

	defer func() {
		result.Metadata.TotalDuration = o.now().Sub(start)
		if o.fetchCounter != nil {
			outcome := "provider"
			if len(result.Data) == 0 && len(result.Errors) > 0 {
				outcome = "empty"
			}
			o.fetchCounter.Inc(ctx,
				metrics.L(LabelStrategy, "batch"),
				metrics.L(LabelOutcome, outcome))
			if o.durationHist != nil {
				o.durationHist.Record(ctx, result.Metadata.TotalDuration.Seconds(),
					metrics.L(LabelStrategy, "batch"))
			}
		}
	}()

	normalized := cache.NormalizeSymbols(symbols)
	if len(normalized) == 0 {
		return result
	}

	// 逐标的探测缓存：新鲜的直接收下，陈旧的留作分片失败时的逐键兜底
	stale := make(map[string]probeEntry)
	misses := make([]string, 0, len(normalized))
	for _, symbol := range normalized {
		rec, age, ok := o.cacheProbe(ctx, cache.Key(cache.DataTypeQuote, symbol))
		if ok && age < ttl {
			result.Data[symbol] = rec
			continue
		}
		if ok {
			stale[symbol] = probeEntry{rec: rec, age: age}
		}
		misses = append(misses, symbol)
	}
	if len(misses) == 0 {
		return result
	}

	cfg := o.registry.Get(providerName)
	client, hasClient := o.clients[providerName]
	if cfg == nil || !hasClient || !o.registry.IsAvailable(providerName) {
		o.failKeys(result, misses, stale, func(string) *provider.Error {
			return provider.NewError(providerName, provider.CodeUnknown, "provider not available", nil)
		})
		return result
	}
	result.Metadata.ProvidersAttempted = append(result.Metadata.ProvidersAttempted, providerName)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.batchConcurrency)

	for _, chunk := range chunkSymbols(misses, cfg.BatchSize) {
		chunk := chunk
		g.Go(func() error {
			// 一个分片是一次网络调用，过一次闸
			if gateErr := o.gate(ctx, providerName); gateErr != nil {
				mu.Lock()
				if gateErr.Code == provider.CodeCircuitOpen {
					result.Metadata.CircuitBreakerTriggered = true
				}
				o.failKeys(result, chunk, stale, func(string) *provider.Error { return gateErr })
				mu.Unlock()
				return nil
			}

			records, err := retry.Do(ctx, cfg.Retry, func(ctx context.Context) (map[string]*provider.Record, error) {
				return client.FetchBatch(ctx, chunk)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.breaker.RecordFailure(providerName)
				perr := provider.Classify(providerName, err)
				logger.Warn("batch chunk failed",
					clog.Int("chunk_size", len(chunk)),
					clog.String("code", string(perr.Code)),
					clog.Error(perr))
				o.failKeys(result, chunk, stale, func(string) *provider.Error { return perr })
				return nil
			}
			o.breaker.RecordSuccess(providerName)

			for _, symbol := range chunk {
				rec, ok := records[symbol]
				if !ok {
					o.failKeys(result, []string{symbol}, stale, func(s string) *provider.Error {
						return provider.NewError(providerName, provider.CodeNotFound, "no data for "+s, nil)
					})
					continue
				}
				o.writeThrough(ctx, cache.Key(cache.DataTypeQuote, symbol), rec, ttl, logger)
				result.Data[symbol] = rec
			}
			return nil
		})
	}
	_ = g.Wait()

	return result
}

// probeEntry 缓存探测留底：分片失败时按标的退回陈旧值
type probeEntry struct {
	rec *provider.Record
	age time.Duration
}

// failKeys 为一组标的记录失败：有陈旧缓存的标的退回陈旧值，其余记录错误
func (o *Orchestrator) failKeys(result *BatchResult, symbols []string, stale map[string]probeEntry, errFor func(string) *provider.Error) {
	for _, symbol := range symbols {
		if p, ok := stale[symbol]; ok {
			result.Data[symbol] = p.rec
			continue
		}
		result.Errors[symbol] = errFor(symbol)
	}
}

// chunkSymbols 把标的列表切成不超过 size 的分片
func chunkSymbols(symbols []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]string, 0, (len(symbols)+size-1)/size)
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks = append(chunks, symbols[start:end])
	}
	return chunks
}
