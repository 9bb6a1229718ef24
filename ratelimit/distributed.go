package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/connector"
	"github.com/ceyewan/findata/metrics"
	"github.com/ceyewan/findata/xerrors"
)

// luaScript 双固定窗口的原子检查与递增
//
// 窗口翻转由键名中的窗口编号承担：新窗口产生新键，旧键靠过期回收，
// 因此脚本只需检查并递增当前窗口的两个计数器。
const luaScript = `
-- KEYS[1]: 分钟窗口计数键
-- KEYS[2]: 天窗口计数键
-- ARGV[1]: 分钟上限 (0 表示不限)
-- ARGV[2]: 天上限 (0 表示不限)

local mlimit = tonumber(ARGV[1])
local dlimit = tonumber(ARGV[2])

local mcount = tonumber(redis.call("GET", KEYS[1]) or "0")
local dcount = tonumber(redis.call("GET", KEYS[2]) or "0")

if mlimit > 0 and mcount >= mlimit then
  return {0, mcount, dcount, "minute"}
end
if dlimit > 0 and dcount >= dlimit then
  return {0, mcount, dcount, "day"}
end

mcount = redis.call("INCR", KEYS[1])
if mcount == 1 then
  redis.call("EXPIRE", KEYS[1], 120)
end
dcount = redis.call("INCR", KEYS[2])
if dcount == 1 then
  redis.call("EXPIRE", KEYS[2], 172800)
end

return {1, mcount, dcount, ""}
`

// distributedLimiter 分布式限流器实现（非导出）
type distributedLimiter struct {
	client *redis.Client
	prefix string
	logger clog.Logger
	script *redis.Script
	limits sync.Map // map[string]Limit

	allowedCounter metrics.Counter
	deniedCounter  metrics.Counter

	now func() time.Time
}

// newDistributed 创建分布式限流器（内部函数）
func newDistributed(
	cfg *DistributedConfig,
	redisConn connector.RedisConnector,
	logger clog.Logger,
	meter metrics.Meter,
) Limiter {
	l := &distributedLimiter{
		client: redisConn.GetClient(),
		prefix: cfg.Prefix,
		logger: logger,
		script: redis.NewScript(luaScript),
		now:    time.Now,
	}

	if meter != nil {
		l.allowedCounter, _ = meter.Counter(MetricAllowed, "Number of allowed acquisitions")
		l.deniedCounter, _ = meter.Counter(MetricDenied, "Number of denied acquisitions")
	}

	logger.Info("distributed rate limiter created", clog.String("prefix", cfg.Prefix))
	return l
}

func (l *distributedLimiter) Configure(provider string, limit Limit) {
	l.limits.Store(provider, limit)
	l.logger.Info("rate limit configured",
		clog.String("provider", provider),
		clog.Int("per_minute", limit.PerMinute),
		clog.Int("per_day", limit.PerDay))
}

// windowKeys 返回当前分钟窗口和天窗口的计数键
func (l *distributedLimiter) windowKeys(provider string) (string, string) {
	now := l.now().UTC()
	minuteID := now.Unix() / 60
	dayID := now.Format("20060102")
	return fmt.Sprintf("%s%s:m:%d", l.prefix, provider, minuteID),
		fmt.Sprintf("%s%s:d:%s", l.prefix, provider, dayID)
}

func (l *distributedLimiter) TryAcquire(ctx context.Context, provider string) (bool, error) {
	if provider == "" {
		return false, ErrProviderEmpty
	}

	var limit Limit
	if v, ok := l.limits.Load(provider); ok {
		limit = v.(Limit)
	}
	if limit.PerMinute <= 0 && limit.PerDay <= 0 {
		return true, nil
	}

	minuteKey, dayKey := l.windowKeys(provider)
	result, err := l.script.Run(ctx, l.client,
		[]string{minuteKey, dayKey},
		limit.PerMinute, limit.PerDay).Result()
	if err != nil {
		l.logger.Error("failed to execute lua script",
			clog.String("provider", provider),
			clog.Error(err))
		return false, xerrors.Wrap(err, "ratelimit: execute lua script")
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 4 {
		return false, xerrors.New("ratelimit: invalid lua script result")
	}

	allowed, ok := resultSlice[0].(int64)
	if !ok {
		return false, xerrors.New("ratelimit: invalid allowed value")
	}

	if allowed == 1 {
		if l.allowedCounter != nil {
			l.allowedCounter.Inc(ctx, metrics.L(LabelMode, "distributed"), metrics.L(LabelProvider, provider))
		}
		return true, nil
	}

	window, _ := resultSlice[3].(string)
	if l.deniedCounter != nil {
		l.deniedCounter.Inc(ctx,
			metrics.L(LabelMode, "distributed"),
			metrics.L(LabelProvider, provider),
			metrics.L(LabelWindow, window))
	}
	l.logger.Debug("rate limit denied",
		clog.String("provider", provider),
		clog.String("window", window))
	return false, nil
}

func (l *distributedLimiter) Usage(ctx context.Context, provider string) (Usage, error) {
	if provider == "" {
		return Usage{}, ErrProviderEmpty
	}

	minuteKey, dayKey := l.windowKeys(provider)
	counts, err := l.client.MGet(ctx, minuteKey, dayKey).Result()
	if err != nil {
		return Usage{}, xerrors.Wrap(err, "ratelimit: read window counts")
	}

	return Usage{
		MinuteCount: parseCount(counts[0]),
		DayCount:    parseCount(counts[1]),
	}, nil
}

func parseCount(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int
	fmt.Sscanf(s, "%d", &n)
	return n
}

// Close 释放资源（连接由 Connector 管理）
func (l *distributedLimiter) Close() error {
	return nil
}
