package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/metrics"
)

// providerWindow 单个数据源的双固定窗口计数，互斥锁只覆盖本数据源
type providerWindow struct {
	mu          sync.Mutex
	limit       Limit
	minuteStart time.Time
	minuteCount int
	dayStart    time.Time
	dayCount    int
}

// standaloneLimiter 单机限流器实现（非导出）
type standaloneLimiter struct {
	logger  clog.Logger
	windows sync.Map // map[string]*providerWindow

	allowedCounter metrics.Counter
	deniedCounter  metrics.Counter

	now func() time.Time
}

// newStandalone 创建单机限流器（内部函数）
func newStandalone(logger clog.Logger, meter metrics.Meter) Limiter {
	l := &standaloneLimiter{
		logger: logger,
		now:    time.Now,
	}

	if meter != nil {
		l.allowedCounter, _ = meter.Counter(MetricAllowed, "Number of allowed acquisitions")
		l.deniedCounter, _ = meter.Counter(MetricDenied, "Number of denied acquisitions")
	}

	logger.Info("standalone rate limiter created")
	return l
}

func (l *standaloneLimiter) Configure(provider string, limit Limit) {
	w := l.getWindow(provider)
	w.mu.Lock()
	w.limit = limit
	w.mu.Unlock()

	l.logger.Info("rate limit configured",
		clog.String("provider", provider),
		clog.Int("per_minute", limit.PerMinute),
		clog.Int("per_day", limit.PerDay))
}

func (l *standaloneLimiter) TryAcquire(ctx context.Context, provider string) (bool, error) {
	if provider == "" {
		return false, ErrProviderEmpty
	}

	w := l.getWindow(provider)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	// 先翻转已过期的窗口
	if minuteStart := now.Truncate(time.Minute); !minuteStart.Equal(w.minuteStart) {
		w.minuteStart = minuteStart
		w.minuteCount = 0
	}
	if dayStart := now.UTC().Truncate(24 * time.Hour); !dayStart.Equal(w.dayStart) {
		w.dayStart = dayStart
		w.dayCount = 0
	}

	// 两个窗口都有余量才放行，拒绝时不递增任何计数
	if w.limit.PerMinute > 0 && w.minuteCount >= w.limit.PerMinute {
		l.deny(ctx, provider, "minute")
		return false, nil
	}
	if w.limit.PerDay > 0 && w.dayCount >= w.limit.PerDay {
		l.deny(ctx, provider, "day")
		return false, nil
	}

	w.minuteCount++
	w.dayCount++

	if l.allowedCounter != nil {
		l.allowedCounter.Inc(ctx, metrics.L(LabelMode, "standalone"), metrics.L(LabelProvider, provider))
	}
	return true, nil
}

func (l *standaloneLimiter) deny(ctx context.Context, provider, window string) {
	if l.deniedCounter != nil {
		l.deniedCounter.Inc(ctx,
			metrics.L(LabelMode, "standalone"),
			metrics.L(LabelProvider, provider),
			metrics.L(LabelWindow, window))
	}
	l.logger.Debug("rate limit denied",
		clog.String("provider", provider),
		clog.String("window", window))
}

func (l *standaloneLimiter) Usage(ctx context.Context, provider string) (Usage, error) {
	if provider == "" {
		return Usage{}, ErrProviderEmpty
	}

	w := l.getWindow(provider)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	u := Usage{MinuteCount: w.minuteCount, DayCount: w.dayCount}
	if !now.Truncate(time.Minute).Equal(w.minuteStart) {
		u.MinuteCount = 0
	}
	if !now.UTC().Truncate(24 * time.Hour).Equal(w.dayStart) {
		u.DayCount = 0
	}
	return u, nil
}

func (l *standaloneLimiter) getWindow(provider string) *providerWindow {
	if v, ok := l.windows.Load(provider); ok {
		return v.(*providerWindow)
	}
	actual, _ := l.windows.LoadOrStore(provider, &providerWindow{})
	return actual.(*providerWindow)
}

func (l *standaloneLimiter) Close() error {
	return nil
}
