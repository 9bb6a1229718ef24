package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/findata/metrics"
)

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// newTestStandalone 创建一个使用可控时钟的单机缓存
func newTestStandalone(t *testing.T, cfg *Config) (*standaloneCache, *manualClock) {
	t.Helper()

	if cfg == nil {
		cfg = &Config{Mode: "standalone"}
	}
	cfg.Mode = "standalone"

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	sc := c.(*standaloneCache)
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	sc.now = clock.Now
	return sc, clock
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNew_Validation(t *testing.T) {
	t.Run("配置为空", func(t *testing.T) {
		_, err := New(nil)
		assert.ErrorIs(t, err, ErrConfigNil)
	})

	t.Run("非法模式", func(t *testing.T) {
		_, err := New(&Config{Mode: "cluster"})
		assert.ErrorIs(t, err, ErrInvalidMode)
	})

	t.Run("分布式模式缺少连接器", func(t *testing.T) {
		_, err := New(&Config{Mode: "distributed"})
		assert.Error(t, err)
	})
}

func TestStandalone_SetGetRoundTrip(t *testing.T) {
	c, _ := newTestStandalone(t, nil)
	ctx := context.Background()

	q := quote{Symbol: "AAPL", Price: 185.5}
	require.NoError(t, c.Set(ctx, "quote:AAPL", q, 30*time.Second))

	var got quote
	require.NoError(t, c.Get(ctx, "quote:AAPL", &got))
	assert.Equal(t, q, got)
}

func TestStandalone_PointerValueAsymmetry(t *testing.T) {
	c, _ := newTestStandalone(t, nil)
	ctx := context.Background()

	t.Run("写指针读值", func(t *testing.T) {
		q := &quote{Symbol: "MSFT", Price: 410.2}
		require.NoError(t, c.Set(ctx, "quote:MSFT", q, 30*time.Second))

		var got quote
		require.NoError(t, c.Get(ctx, "quote:MSFT", &got))
		assert.Equal(t, *q, got)

		gotAge, err := c.GetStale(ctx, "quote:MSFT", &got)
		require.NoError(t, err)
		assert.Equal(t, *q, got)
		assert.GreaterOrEqual(t, gotAge, time.Duration(0))
	})

	t.Run("写值读值不受影响", func(t *testing.T) {
		q := quote{Symbol: "GOOG", Price: 170.1}
		require.NoError(t, c.Set(ctx, "quote:GOOG", q, 30*time.Second))

		var got quote
		require.NoError(t, c.Get(ctx, "quote:GOOG", &got))
		assert.Equal(t, q, got)
	})

	ok, err := c.Has(ctx, "quote:AAPL")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStandalone_MissOnAbsentKey(t *testing.T) {
	c, _ := newTestStandalone(t, nil)

	var got quote
	err := c.Get(context.Background(), "quote:TSLA", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestStandalone_FreshStaleAsymmetry(t *testing.T) {
	c, clock := newTestStandalone(t, nil)
	ctx := context.Background()

	q := quote{Symbol: "MSFT", Price: 410.2}
	require.NoError(t, c.Set(ctx, "quote:MSFT", q, 30*time.Second))

	t.Run("TTL 内新鲜命中", func(t *testing.T) {
		clock.Advance(29 * time.Second)

		var got quote
		require.NoError(t, c.Get(ctx, "quote:MSFT", &got))
		assert.Equal(t, q, got)
	})

	t.Run("过期后新鲜路径未命中", func(t *testing.T) {
		clock.Advance(2 * time.Second)

		var got quote
		assert.ErrorIs(t, c.Get(ctx, "quote:MSFT", &got), ErrCacheMiss)

		ok, err := c.Has(ctx, "quote:MSFT")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("陈旧路径仍可读取并报告年龄", func(t *testing.T) {
		var got quote
		age, err := c.GetStale(ctx, "quote:MSFT", &got)
		require.NoError(t, err)
		assert.Equal(t, q, got)
		assert.Equal(t, 31*time.Second, age)
	})
}

func TestStandalone_DeleteAndClear(t *testing.T) {
	c, _ := newTestStandalone(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", quote{Symbol: "A"}, time.Minute))
	require.NoError(t, c.Set(ctx, "b", quote{Symbol: "B"}, time.Minute))

	require.NoError(t, c.Delete(ctx, "a"))
	var got quote
	assert.ErrorIs(t, c.Get(ctx, "a", &got), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "b", &got))

	require.NoError(t, c.Clear(ctx))
	assert.ErrorIs(t, c.Get(ctx, "b", &got), ErrCacheMiss)
}

func TestStandalone_Stats(t *testing.T) {
	c, clock := newTestStandalone(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", quote{Symbol: "K"}, time.Second))

	var got quote
	require.NoError(t, c.Get(ctx, "k", &got)) // hit
	_ = c.Get(ctx, "absent", &got)            // miss

	clock.Advance(2 * time.Second)
	_, err := c.GetStale(ctx, "k", &got) // stale hit
	require.NoError(t, err)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Sets)
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(1), s.StaleHits)
}

func TestKey_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		dataType DataType
		symbols  []string
		want     string
	}{
		{"排序", DataTypeQuote, []string{"MSFT", "AAPL"}, "quote:AAPL,MSFT"},
		{"去重", DataTypeQuote, []string{"AAPL", "aapl", "AAPL"}, "quote:AAPL"},
		{"大小写与空白", DataTypeBatchQuote, []string{" msft ", "googl"}, "batch_quote:GOOGL,MSFT"},
		{"跳过空符号", DataTypeFundamentals, []string{"", "IBM"}, "fundamentals:IBM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.dataType, tt.symbols...))
		})
	}
}

func TestKey_EquivalentRequestsCollide(t *testing.T) {
	a := Key(DataTypeBatchQuote, "msft", "AAPL", "AAPL")
	b := Key(DataTypeBatchQuote, "AAPL", "MSFT")
	assert.Equal(t, a, b)
}

func TestTTLPolicy_Lookup(t *testing.T) {
	p := DefaultTTLPolicy()

	t.Run("付费层 TTL 更短", func(t *testing.T) {
		free := p.TTLFor(DataTypeQuote, TierFree)
		premium := p.TTLFor(DataTypeQuote, TierPremium)
		assert.Greater(t, free, premium)
	})

	t.Run("未知层级回退到免费层", func(t *testing.T) {
		assert.Equal(t, p.TTLFor(DataTypeQuote, TierFree), p.TTLFor(DataTypeQuote, Tier("enterprise")))
	})

	t.Run("未知数据类型有保守默认值", func(t *testing.T) {
		assert.Equal(t, 5*time.Minute, p.TTLFor(DataType("news"), TierFree))
	})
}

// stubMeter 记录计数的假 Meter，验证指标接线
type stubCounter struct {
	mu sync.Mutex
	n  int
}

func (c *stubCounter) Inc(ctx context.Context, _ ...metrics.Label) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *stubCounter) Add(ctx context.Context, val float64, _ ...metrics.Label) {
	c.mu.Lock()
	c.n += int(val)
	c.mu.Unlock()
}

func (c *stubCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type stubMeter struct {
	counters map[string]*stubCounter
}

func (m *stubMeter) Counter(name, desc string, _ ...metrics.MetricOption) (metrics.Counter, error) {
	c := &stubCounter{}
	m.counters[name] = c
	return c, nil
}

func (m *stubMeter) Gauge(name, desc string, opts ...metrics.MetricOption) (metrics.Gauge, error) {
	return metrics.Discard().Gauge(name, desc, opts...)
}

func (m *stubMeter) Histogram(name, desc string, opts ...metrics.MetricOption) (metrics.Histogram, error) {
	return metrics.Discard().Histogram(name, desc, opts...)
}

func (m *stubMeter) Shutdown(ctx context.Context) error { return nil }

func TestStandalone_MeterWiring(t *testing.T) {
	meter := &stubMeter{counters: map[string]*stubCounter{}}

	c, err := New(&Config{Mode: "standalone"}, WithMeter(meter))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	sc := c.(*standaloneCache)
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	sc.now = clock.Now

	ctx := context.Background()
	q := quote{Symbol: "AAPL", Price: 185.5}
	require.NoError(t, c.Set(ctx, "quote:AAPL", q, 30*time.Second))

	var got quote
	require.NoError(t, c.Get(ctx, "quote:AAPL", &got))
	assert.ErrorIs(t, c.Get(ctx, "quote:MSFT", &got), ErrCacheMiss)

	clock.Advance(31 * time.Second)
	_, err = c.GetStale(ctx, "quote:AAPL", &got)
	require.NoError(t, err)

	assert.Equal(t, 1, meter.counters[MetricSets].count())
	assert.Equal(t, 1, meter.counters[MetricHits].count())
	assert.Equal(t, 1, meter.counters[MetricMisses].count())
	assert.Equal(t, 1, meter.counters[MetricStaleHits].count())
}
