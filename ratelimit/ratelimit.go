// Package ratelimit 提供面向外部数据源配额的限流组件，支持单机和分布式两种模式。
//
// 外部行情 API 的配额是粗粒度的（每分钟 N 次、每天 M 次），因此采用固定窗口计数
// 而非令牌桶：每个数据源维护分钟窗口和天窗口两个计数器，窗口随时间对齐翻转，
// 只有两个计数都未达上限时才放行，放行时原子地同时递增两个计数。
//
// ## 基本使用
//
//	limiter, _ := ratelimit.NewStandalone(ratelimit.WithLogger(logger))
//	limiter.Configure("alphavantage", ratelimit.Limit{PerMinute: 5, PerDay: 500})
//
//	allowed, _ := limiter.TryAcquire(ctx, "alphavantage")
//	if !allowed {
//	    // 配额耗尽，换下一个数据源
//	}
//
// ## 分布式模式
//
// 多实例部署时共享配额需要分布式计数，基于 Redis + Lua 实现原子的双窗口检查与递增：
//
//	redisConn, _ := connector.NewRedis(&cfg.Redis, connector.WithLogger(logger))
//	limiter, _ := ratelimit.NewDistributed(redisConn, &ratelimit.DistributedConfig{
//	    Prefix: "findata:ratelimit:",
//	}, ratelimit.WithLogger(logger))
package ratelimit

import (
	"context"

	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/connector"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Limit 单个数据源的配额规则，0 表示该维度不限制
type Limit struct {
	PerMinute int `json:"per_minute" yaml:"per_minute" mapstructure:"per_minute"`
	PerDay    int `json:"per_day" yaml:"per_day" mapstructure:"per_day"`
}

// Usage 当前窗口的用量快照
type Usage struct {
	MinuteCount int `json:"minute_count"`
	DayCount    int `json:"day_count"`
}

// Limiter 限流器核心接口
type Limiter interface {
	// TryAcquire 尝试为指定数据源获取一次调用额度（非阻塞）。
	// 先翻转已过期的窗口，再检查两个计数；都未达上限时原子递增并返回 true，
	// 否则不递增、返回 false。未通过 Configure 注册的数据源不受限制。
	TryAcquire(ctx context.Context, provider string) (bool, error)

	// Configure 注册数据源的配额规则，进程启动时调用一次
	Configure(provider string, limit Limit)

	// Usage 返回数据源当前窗口的用量
	Usage(ctx context.Context, provider string) (Usage, error)

	// Close 释放资源
	Close() error
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// DistributedConfig 分布式限流配置
type DistributedConfig struct {
	// Prefix Redis Key 前缀（默认："ratelimit:"）
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
}

func (c *DistributedConfig) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = "ratelimit:"
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// NewStandalone 创建单机限流器
//
// 使用示例:
//
//	limiter, _ := ratelimit.NewStandalone(ratelimit.WithLogger(logger))
//	limiter.Configure("finnhub", ratelimit.Limit{PerMinute: 60, PerDay: 0})
func NewStandalone(opts ...Option) (Limiter, error) {
	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Discard()
	}

	return newStandalone(opt.logger, opt.meter), nil
}

// NewDistributed 创建分布式限流器
//
// 参数:
//   - redisConn: Redis 连接器
//   - cfg: 分布式限流配置
//   - opts: 可选参数 (Logger, Meter)
func NewDistributed(redisConn connector.RedisConnector, cfg *DistributedConfig, opts ...Option) (Limiter, error) {
	if redisConn == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		cfg = &DistributedConfig{}
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Discard()
	}

	return newDistributed(cfg, redisConn, opt.logger, opt.meter), nil
}
