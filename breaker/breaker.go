// Package breaker 提供了熔断器组件，专注于外部数据提供商的故障隔离与自动恢复。
//
// breaker 是 findata 治理层的核心组件，它提供了：
// - 经典三态熔断器（Closed / Open / HalfOpen）
// - 提供商级粒度的熔断管理（按提供商名称独立熔断，互不影响）
// - 基于连续失败次数的熔断触发
// - 半开状态下的有限探测请求预算，任一探测成功立即恢复
//
// ## 基本使用
//
//	brk, _ := breaker.New(&breaker.Config{
//		FailureThreshold:    5,
//		ResetTimeout:        30 * time.Second,
//		HalfOpenMaxRequests: 1,
//	}, breaker.WithLogger(logger))
//
//	// 针对特定提供商注册独立阈值
//	brk.Configure("alphavantage", &breaker.Config{
//		FailureThreshold: 3,
//		ResetTimeout:     60 * time.Second,
//	})
//
//	if !brk.Allow("alphavantage") {
//		// 熔断中，直接跳过该提供商
//	}
//	// ...调用提供商...
//	brk.RecordSuccess("alphavantage") // 或 brk.RecordFailure("alphavantage")
package breaker

import (
	"time"

	"github.com/ceyewan/findata/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Breaker 熔断器核心接口
//
// 状态机由本组件独占管理：调用方只通过 Allow 查询放行许可，
// 并通过 RecordSuccess / RecordFailure 报告调用结果，从不直接修改状态。
type Breaker interface {
	// Allow 查询指定提供商当前是否允许发起调用
	// 返回 false 表示熔断器处于打开状态（或半开探测预算已用尽），
	// 调用方不应发起网络请求
	Allow(name string) bool

	// RecordSuccess 报告一次成功调用
	// Closed 状态下重置连续失败计数；HalfOpen 状态下任一成功立即恢复为 Closed
	RecordSuccess(name string)

	// RecordFailure 报告一次失败调用
	// Closed 状态下累计连续失败，达到阈值后熔断；
	// HalfOpen 状态下任一失败立即回到 Open 并重置打开时刻
	RecordFailure(name string)

	// Configure 为指定提供商注册独立的熔断配置
	// 应在进程初始化阶段调用，未注册的提供商使用默认配置
	Configure(name string, cfg *Config)

	// State 获取指定提供商的熔断器状态
	State(name string) State

	// Snapshot 返回指定提供商的状态快照，用于健康上报与调试
	Snapshot(name string) Snapshot
}

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Snapshot 熔断器状态快照
type Snapshot struct {
	State               State
	ConsecutiveFailures int
	LastFailureAt       time.Time
	OpenedAt            time.Time
	HalfOpenProbes      int
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 熔断器配置
type Config struct {
	// FailureThreshold 触发熔断的连续失败次数（默认：5，必须大于 0）
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// ResetTimeout 打开状态持续时间（默认：30s，必须大于 0）
	// 超时后下一次 Allow 调用进入半开状态进行探测
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"reset_timeout" mapstructure:"reset_timeout"`

	// HalfOpenMaxRequests 半开状态下允许通过的最大并发探测请求数（默认：1）
	// 超出预算的请求按熔断中处理
	HalfOpenMaxRequests int `json:"half_open_max_requests" yaml:"half_open_max_requests" mapstructure:"half_open_max_requests"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 1
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建熔断器实例
// 这是标准的工厂函数，支持在不依赖其他容器的情况下独立实例化
//
// 参数:
//   - cfg: 默认熔断配置（对未单独 Configure 的提供商生效）
//   - opts: 可选参数 (Logger, Meter)
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	// 应用选项
	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}

	defaults := *cfg
	defaults.setDefaults()

	logger.Info("creating circuit breaker",
		clog.Int("failure_threshold", defaults.FailureThreshold),
		clog.Duration("reset_timeout", defaults.ResetTimeout),
		clog.Int("half_open_max_requests", defaults.HalfOpenMaxRequests))

	return newBreaker(&defaults, logger, opt.meter)
}
