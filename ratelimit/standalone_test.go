package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T) (*standaloneLimiter, *stubClock) {
	t.Helper()

	l, err := NewStandalone()
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	sl := l.(*standaloneLimiter)
	// 对齐到分钟边界，窗口翻转时刻可预测
	clock := &stubClock{now: time.Unix(1700000000, 0).Truncate(time.Minute)}
	sl.now = clock.Now
	return sl, clock
}

func TestTryAcquire_EmptyProvider(t *testing.T) {
	l, _ := newTestLimiter(t)

	_, err := l.TryAcquire(context.Background(), "")
	assert.ErrorIs(t, err, ErrProviderEmpty)
}

func TestTryAcquire_UnconfiguredProviderUnlimited(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		allowed, err := l.TryAcquire(ctx, "unknown")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestTryAcquire_MinuteWindow(t *testing.T) {
	l, clock := newTestLimiter(t)
	ctx := context.Background()

	l.Configure("alphavantage", Limit{PerMinute: 3, PerDay: 0})

	t.Run("窗口内不超过上限", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := l.TryAcquire(ctx, "alphavantage")
			require.NoError(t, err)
			assert.True(t, allowed, "第 %d 次应放行", i+1)
		}

		allowed, err := l.TryAcquire(ctx, "alphavantage")
		require.NoError(t, err)
		assert.False(t, allowed, "超过分钟上限应拒绝")
	})

	t.Run("拒绝不消耗计数", func(t *testing.T) {
		u, err := l.Usage(ctx, "alphavantage")
		require.NoError(t, err)
		assert.Equal(t, 3, u.MinuteCount)
	})

	t.Run("跨过窗口边界后计数归零", func(t *testing.T) {
		clock.Advance(time.Minute)

		allowed, err := l.TryAcquire(ctx, "alphavantage")
		require.NoError(t, err)
		assert.True(t, allowed)

		u, err := l.Usage(ctx, "alphavantage")
		require.NoError(t, err)
		assert.Equal(t, 1, u.MinuteCount)
	})
}

func TestTryAcquire_DayWindowOutlivesMinuteWindow(t *testing.T) {
	l, clock := newTestLimiter(t)
	ctx := context.Background()

	l.Configure("finnhub", Limit{PerMinute: 10, PerDay: 3})

	for i := 0; i < 3; i++ {
		allowed, err := l.TryAcquire(ctx, "finnhub")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	// 分钟窗口翻转不会恢复天配额
	clock.Advance(time.Minute)
	allowed, err := l.TryAcquire(ctx, "finnhub")
	require.NoError(t, err)
	assert.False(t, allowed)

	u, err := l.Usage(ctx, "finnhub")
	require.NoError(t, err)
	assert.Equal(t, 0, u.MinuteCount)
	assert.Equal(t, 3, u.DayCount)
}

func TestTryAcquire_AdmissionIncrementsBothCounts(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	l.Configure("twelvedata", Limit{PerMinute: 10, PerDay: 100})

	allowed, err := l.TryAcquire(ctx, "twelvedata")
	require.NoError(t, err)
	require.True(t, allowed)

	u, err := l.Usage(ctx, "twelvedata")
	require.NoError(t, err)
	assert.Equal(t, 1, u.MinuteCount)
	assert.Equal(t, 1, u.DayCount)
}

func TestTryAcquire_PerProviderIsolation(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	l.Configure("a", Limit{PerMinute: 1})
	l.Configure("b", Limit{PerMinute: 1})

	allowed, _ := l.TryAcquire(ctx, "a")
	require.True(t, allowed)
	allowed, _ = l.TryAcquire(ctx, "a")
	require.False(t, allowed)

	// a 耗尽不影响 b
	allowed, _ = l.TryAcquire(ctx, "b")
	assert.True(t, allowed)
}

func TestTryAcquire_ConcurrentNeverOverAdmits(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	const limit = 50
	l.Configure("p", Limit{PerMinute: limit})

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				allowed, err := l.TryAcquire(ctx, "p")
				if err == nil && allowed {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())
}
