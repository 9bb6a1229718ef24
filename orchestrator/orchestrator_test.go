package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/findata/cache"
	"github.com/ceyewan/findata/metrics"
	"github.com/ceyewan/findata/provider"
	"github.com/ceyewan/findata/ratelimit"
	"github.com/ceyewan/findata/xerrors"
)

// fakeClient 可编程的数据源客户端，记录调用轨迹
type fakeClient struct {
	name string

	mu         sync.Mutex
	fetchCalls []string
	batchCalls [][]string

	fetchFn func(ctx context.Context, symbol string) (*provider.Record, error)
	batchFn func(ctx context.Context, symbols []string) (map[string]*provider.Record, error)
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) FetchOne(ctx context.Context, symbol string) (*provider.Record, error) {
	f.mu.Lock()
	f.fetchCalls = append(f.fetchCalls, symbol)
	f.mu.Unlock()
	if f.fetchFn == nil {
		return okRecord(symbol, f.name), nil
	}
	return f.fetchFn(ctx, symbol)
}

func (f *fakeClient) FetchBatch(ctx context.Context, symbols []string) (map[string]*provider.Record, error) {
	f.mu.Lock()
	f.batchCalls = append(f.batchCalls, append([]string(nil), symbols...))
	f.mu.Unlock()
	if f.batchFn == nil {
		out := make(map[string]*provider.Record, len(symbols))
		for _, s := range symbols {
			out[s] = okRecord(s, f.name)
		}
		return out, nil
	}
	return f.batchFn(ctx, symbols)
}

func (f *fakeClient) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetchCalls)
}

func okRecord(symbol, source string) *provider.Record {
	rec := provider.NewRecord(symbol, source)
	rec.Price = 100
	rec.UpdatedAt = time.Now()
	return rec
}

func failing(code error) func(ctx context.Context, symbol string) (*provider.Record, error) {
	return func(ctx context.Context, symbol string) (*provider.Record, error) {
		return nil, code
	}
}

// testConfig 默认不限流、不要求 API Key 的数据源配置
func testConfig(name string, priority int) *provider.Config {
	return &provider.Config{
		Name:     name,
		Enabled:  true,
		Priority: priority,
		Timeout:  time.Second,
	}
}

func newTestOrchestrator(t *testing.T, cfgs []*provider.Config, clients []provider.Client, opts ...Option) *Orchestrator {
	t.Helper()

	registry, err := provider.NewRegistry(cfgs)
	require.NoError(t, err)

	o, err := New(registry, clients, opts...)
	require.NoError(t, err)
	return o
}

func TestNew_Validation(t *testing.T) {
	t.Run("registry 为空", func(t *testing.T) {
		_, err := New(nil, []provider.Client{&fakeClient{name: "a"}})
		assert.Error(t, err)
	})

	t.Run("没有客户端", func(t *testing.T) {
		registry, _ := provider.NewRegistry([]*provider.Config{testConfig("a", 1)})
		_, err := New(registry, nil)
		assert.Error(t, err)
	})

	t.Run("客户端缺少配置", func(t *testing.T) {
		registry, _ := provider.NewRegistry([]*provider.Config{testConfig("a", 1)})
		_, err := New(registry, []provider.Client{&fakeClient{name: "b"}})
		assert.Error(t, err)
	})
}

func TestFetchWithFallback_FirstSuccessShortCircuits(t *testing.T) {
	a := &fakeClient{name: "a"}
	b := &fakeClient{name: "b"}
	o := newTestOrchestrator(t,
		[]*provider.Config{testConfig("a", 1), testConfig("b", 2)},
		[]provider.Client{a, b})

	result := o.FetchWithFallback(context.Background(), "AAPL", []string{"a", "b"}, cache.TierFree)

	require.NotNil(t, result.Data)
	assert.Equal(t, "a", result.Source)
	assert.False(t, result.Cached)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"a"}, result.Metadata.ProvidersAttempted)
	assert.Equal(t, 0, b.fetchCount(), "首选成功后不应再尝试后备数据源")
	assert.NotEmpty(t, result.Metadata.RequestID)
}

func TestFetchWithFallback_FallsBackOnFailure(t *testing.T) {
	a := &fakeClient{name: "a", fetchFn: failing(xerrors.New("boom"))}
	b := &fakeClient{name: "b"}
	o := newTestOrchestrator(t,
		[]*provider.Config{testConfig("a", 1), testConfig("b", 2)},
		[]provider.Client{a, b})

	result := o.FetchWithFallback(context.Background(), "AAPL", []string{"a", "b"}, cache.TierFree)

	require.NotNil(t, result.Data)
	assert.Equal(t, "b", result.Source)
	require.Len(t, result.Errors, 1, "失败的首选数据源应留下恰好一条错误")
	assert.Equal(t, "a", result.Errors[0].Provider)
	assert.Equal(t, []string{"a", "b"}, result.Metadata.ProvidersAttempted)
}

func TestFetchWithFallback_PriorityOrdering(t *testing.T) {
	var order []string
	var mu sync.Mutex
	mk := func(name string) *fakeClient {
		return &fakeClient{name: name, fetchFn: func(ctx context.Context, symbol string) (*provider.Record, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, xerrors.New("fail")
		}}
	}

	o := newTestOrchestrator(t,
		[]*provider.Config{testConfig("low", 5), testConfig("high", 1), testConfig("mid", 3)},
		[]provider.Client{mk("low"), mk("high"), mk("mid")})

	_ = o.FetchWithFallback(context.Background(), "AAPL", []string{"low", "high", "mid"}, cache.TierFree)

	assert.Equal(t, []string{"high", "mid", "low"}, order, "必须按优先级升序尝试")
}

func TestFetchWithFallback_AllFailNoCache(t *testing.T) {
	a := &fakeClient{name: "a", fetchFn: failing(provider.ErrNotFound)}
	o := newTestOrchestrator(t,
		[]*provider.Config{testConfig("a", 1)},
		[]provider.Client{a})

	result := o.FetchWithFallback(context.Background(), "AAPL", []string{"a"}, cache.TierFree)

	assert.Nil(t, result.Data)
	require.NotEmpty(t, result.Errors, "Data 为空时必须报告原因")
	assert.Equal(t, provider.CodeNotFound, result.Errors[0].Code)
}

func TestFetchWithFallback_FreshCacheHitSkipsProviders(t *testing.T) {
	a := &fakeClient{name: "a"}
	o := newTestOrchestrator(t,
		[]*provider.Config{testConfig("a", 1)},
		[]provider.Client{a})

	// 第一次调用写穿缓存
	first := o.FetchWithFallback(context.Background(), "AAPL", []string{"a"}, cache.TierFree)
	require.Equal(t, "a", first.Source)

	// 第二次调用应命中缓存，不触达任何数据源、限流或熔断逻辑
	second := o.FetchWithFallback(context.Background(), "AAPL", []string{"a"}, cache.TierFree)
	assert.Equal(t, SourceCache, second.Source)
	assert.True(t, second.Cached)
	assert.GreaterOrEqual(t, second.Age, time.Duration(0))
	assert.Empty(t, second.Metadata.ProvidersAttempted)
	assert.Equal(t, 1, a.fetchCount())
}

func TestFetchWithFallback_StaleCacheAsLastResort(t *testing.T) {
	calls := 0
	a := &fakeClient{name: "a", fetchFn: func(ctx context.Context, symbol string) (*provider.Record, error) {
		calls++
		if calls == 1 {
			return okRecord(symbol, "a"), nil
		}
		return nil, xerrors.New("outage")
	}}

	// TTL 极短、保留窗口足够长，第二次调用时条目已陈旧但仍可兜底
	shortTTL := cache.TTLPolicy{
		cache.DataTypeQuote: {cache.TierFree: 5 * time.Millisecond},
	}
	o := newTestOrchestrator(t,
		[]*provider.Config{testConfig("a", 1)},
		[]provider.Client{a},
		WithTTLPolicy(shortTTL))

	first := o.FetchWithFallback(context.Background(), "AAPL", []string{"a"}, cache.TierFree)
	require.Equal(t, "a", first.Source)

	time.Sleep(10 * time.Millisecond)

	second := o.FetchWithFallback(context.Background(), "AAPL", []string{"a"}, cache.TierFree)
	require.NotNil(t, second.Data, "数据源故障时应退回陈旧缓存")
	assert.Equal(t, SourceCache, second.Source)
	assert.True(t, second.Cached)
	assert.GreaterOrEqual(t, second.Age, 5*time.Millisecond, "age 反映缓存条目年龄")
	assert.NotEmpty(t, second.Errors, "降级结果仍携带失败原因")
}

// countingMeter 记录计数的假 Meter，验证指标接线
type countingCounter struct {
	mu sync.Mutex
	n  int
}

func (c *countingCounter) Inc(ctx context.Context, _ ...metrics.Label) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingCounter) Add(ctx context.Context, val float64, _ ...metrics.Label) {
	c.mu.Lock()
	c.n += int(val)
	c.mu.Unlock()
}

func (c *countingCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type countingMeter struct {
	mu       sync.Mutex
	counters map[string]*countingCounter
}

func (m *countingMeter) Counter(name, desc string, _ ...metrics.MetricOption) (metrics.Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[name]
	if !ok {
		c = &countingCounter{}
		m.counters[name] = c
	}
	return c, nil
}

func (m *countingMeter) Gauge(name, desc string, opts ...metrics.MetricOption) (metrics.Gauge, error) {
	return metrics.Discard().Gauge(name, desc, opts...)
}

func (m *countingMeter) Histogram(name, desc string, opts ...metrics.MetricOption) (metrics.Histogram, error) {
	return metrics.Discard().Histogram(name, desc, opts...)
}

func (m *countingMeter) Shutdown(ctx context.Context) error { return nil }

func TestFetchWithFallback_StaleFallbackCountedOnce(t *testing.T) {
	calls := 0
	a := &fakeClient{name: "a", fetchFn: func(ctx context.Context, symbol string) (*provider.Record, error) {
		calls++
		if calls == 1 {
			return okRecord(symbol, "a"), nil
		}
		return nil, xerrors.New("outage")
	}}

	meter := &countingMeter{counters: map[string]*countingCounter{}}
	shortTTL := cache.TTLPolicy{
		cache.DataTypeQuote: {cache.TierFree: 5 * time.Millisecond},
	}
	o := newTestOrchestrator(t,
		[]*provider.Config{testConfig("a", 1)},
		[]provider.Client{a},
		WithTTLPolicy(shortTTL),
		WithMeter(meter))

	first := o.FetchWithFallback(context.Background(), "AAPL", []string{"a"}, cache.TierFree)
	require.Equal(t, "a", first.Source)

	time.Sleep(10 * time.Millisecond)

	second := o.FetchWithFallback(context.Background(), "AAPL", []string{"a"}, cache.TierFree)
	require.True(t, second.Cached)

	assert.Equal(t, 1, meter.counters[MetricStaleFallbacks].count(),
		"一次陈旧兜底只计一次")
}

func TestFetchWithFallback_CircuitBreakerGate(t *testing.T) {
	a := &fakeClient{name: "a", fetchFn: failing(xerrors.New("down"))}
	cfg := testConfig("a", 1)
	cfg.CircuitBreaker.FailureThreshold = 2
	cfg.CircuitBreaker.ResetTimeout = time.Hour

	o := newTestOrchestrator(t, []*provider.Config{cfg}, []provider.Client{a})
	ctx := context.Background()

	// 两次失败后熔断
	_ = o.FetchWithFallback(ctx, "AAPL", []string{"a"}, cache.TierFree)
	_ = o.FetchWithFallback(ctx, "MSFT", []string{"a"}, cache.TierFree)
	require.Equal(t, 2, a.fetchCount())

	result := o.FetchWithFallback(ctx, "GOOG", []string{"a"}, cache.TierFree)

	assert.Equal(t, 2, a.fetchCount(), "熔断器打开后不应发起网络调用")
	assert.True(t, result.Metadata.CircuitBreakerTriggered)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, provider.CodeCircuitOpen, result.Errors[0].Code)
}

func TestFetchWithFallback_RateLimitGate(t *testing.T) {
	a := &fakeClient{name: "a"}
	b := &fakeClient{name: "b"}
	cfgA := testConfig("a", 1)
	cfgA.RateLimit = ratelimit.Limit{PerMinute: 1}

	o := newTestOrchestrator(t,
		[]*provider.Config{cfgA, testConfig("b", 2)},
		[]provider.Client{a, b})
	ctx := context.Background()

	first := o.FetchWithFallback(ctx, "AAPL", []string{"a", "b"}, cache.TierFree)
	require.Equal(t, "a", first.Source)

	// a 的配额耗尽，流量转到 b
	second := o.FetchWithFallback(ctx, "MSFT", []string{"a", "b"}, cache.TierFree)
	assert.Equal(t, "b", second.Source)
	require.Len(t, second.Errors, 1)
	assert.Equal(t, provider.CodeRateLimited, second.Errors[0].Code)
	assert.Equal(t, 1, a.fetchCount(), "被限流的数据源不应被调用")
}

func TestFetchWithFallback_UnavailableProvidersExcluded(t *testing.T) {
	disabled := testConfig("disabled", 1)
	disabled.Enabled = false
	keyless := testConfig("keyless", 2)
	keyless.RequireAPIKey = true

	o := newTestOrchestrator(t,
		[]*provider.Config{disabled, keyless, testConfig("ok", 3)},
		[]provider.Client{
			&fakeClient{name: "disabled"},
			&fakeClient{name: "keyless"},
			&fakeClient{name: "ok"},
		})

	result := o.FetchWithFallback(context.Background(), "AAPL",
		[]string{"disabled", "keyless", "ok"}, cache.TierFree)

	assert.Equal(t, "ok", result.Source)
	assert.Equal(t, []string{"ok"}, result.Metadata.ProvidersAttempted,
		"停用或缺 Key 的数据源不应出现在尝试列表里")
	assert.Empty(t, result.Errors)
}

func TestFetchWithFallback_Deduplication(t *testing.T) {
	release := make(chan struct{})
	a := &fakeClient{name: "a", fetchFn: func(ctx context.Context, symbol string) (*provider.Record, error) {
		<-release
		return okRecord(symbol, "a"), nil
	}}
	o := newTestOrchestrator(t,
		[]*provider.Config{testConfig("a", 1)},
		[]provider.Client{a})

	var wg sync.WaitGroup
	results := make([]*FetchResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.FetchWithFallback(context.Background(), "AAPL", []string{"a"}, cache.TierFree)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, a.fetchCount(), "同键并发请求应合并为一次数据源调用")
	assert.True(t, results[0].Metadata.Deduplicated || results[1].Metadata.Deduplicated)
	for _, r := range results {
		require.NotNil(t, r.Data)
	}
}

func TestStats(t *testing.T) {
	o := newTestOrchestrator(t,
		[]*provider.Config{testConfig("a", 1)},
		[]provider.Client{&fakeClient{name: "a"}})

	_ = o.FetchWithFallback(context.Background(), "AAPL", []string{"a"}, cache.TierFree)

	s := o.Stats()
	assert.Equal(t, int64(1), s.Cache.Sets)
	assert.Contains(t, s.Breakers, "a")
}

func TestHealthCheck_Fanout(t *testing.T) {
	o := newTestOrchestrator(t,
		[]*provider.Config{testConfig("a", 1), testConfig("b", 2)},
		[]provider.Client{&fakeClient{name: "a"}, &fakeClient{name: "b"}})

	results := o.HealthCheck(context.Background())
	require.Len(t, results, 2)
	assert.NoError(t, results["a"])
	assert.NoError(t, results["b"])
}
