package orchestrator

import (
	"github.com/google/uuid"

	"github.com/ceyewan/findata/breaker"
	"github.com/ceyewan/findata/cache"
	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/metrics"
	"github.com/ceyewan/findata/ratelimit"
)

// Option 编排器选项函数
type Option func(*options)

// options 选项结构（内部使用）
type options struct {
	logger           clog.Logger
	meter            metrics.Meter
	cache            cache.Cache
	limiter          ratelimit.Limiter
	breaker          breaker.Breaker
	ttl              cache.TTLPolicy
	batchConcurrency int
}

// WithLogger 注入日志记录器
// 组件内部会自动追加 Namespace: logger.WithNamespace("orchestrator")
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("orchestrator")
		}
	}
}

// WithMeter 注入指标 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithCache 注入缓存实现（默认创建单机缓存）
func WithCache(c cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithLimiter 注入限流器（默认创建单机限流器）
func WithLimiter(l ratelimit.Limiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}

// WithBreaker 注入熔断器（默认创建进程内熔断器）
func WithBreaker(b breaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}

// WithTTLPolicy 覆盖默认的 TTL 查找表
func WithTTLPolicy(p cache.TTLPolicy) Option {
	return func(o *options) {
		o.ttl = p
	}
}

// WithBatchConcurrency 批量分片的最大并发数（默认 4）
func WithBatchConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchConcurrency = n
		}
	}
}

// newRequestID 生成贯穿一次编排调用的请求标识
func newRequestID() string {
	return uuid.NewString()
}
