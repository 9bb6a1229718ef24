package provider

import (
	"time"

	"github.com/ceyewan/findata/breaker"
	"github.com/ceyewan/findata/ratelimit"
	"github.com/ceyewan/findata/retry"
	"github.com/ceyewan/findata/xerrors"
)

// Config 单个数据源的身份与策略，进程启动时从配置装配，之后不可变。
// 启用/停用数据源只能通过改配置重启，不支持热更新
type Config struct {
	// Name 唯一标识，如 "alphavantage"
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Enabled 是否参与编排
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Priority 越小越先尝试；相同优先级按注册顺序
	Priority int `json:"priority" yaml:"priority" mapstructure:"priority"`

	// APIKey 访问凭证；RequireAPIKey 为 true 且 APIKey 为空时数据源不可用
	APIKey        string `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	RequireAPIKey bool   `json:"require_api_key" yaml:"require_api_key" mapstructure:"require_api_key"`

	// BaseURL 覆盖数据源默认地址（主要用于测试）
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Timeout 单次调用超时（默认 10s）
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// Retry 重试策略
	Retry retry.Policy `json:"retry" yaml:"retry" mapstructure:"retry"`

	// CircuitBreaker 熔断配置
	CircuitBreaker breaker.Config `json:"circuit_breaker" yaml:"circuit_breaker" mapstructure:"circuit_breaker"`

	// RateLimit 配额规则
	RateLimit ratelimit.Limit `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`

	// BatchSize 单次网络调用最多携带的标的数（默认 1，即不支持批量）
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.CircuitBreaker.FailureThreshold <= 0 {
		c.CircuitBreaker.FailureThreshold = 5
	}
	if c.CircuitBreaker.ResetTimeout <= 0 {
		c.CircuitBreaker.ResetTimeout = 30 * time.Second
	}
	if c.CircuitBreaker.HalfOpenMaxRequests <= 0 {
		c.CircuitBreaker.HalfOpenMaxRequests = 1
	}
	if c.Retry.Timeout <= 0 {
		c.Retry.Timeout = c.Timeout
	}
}

func (c *Config) validate() error {
	if c.Name == "" {
		return xerrors.New("provider: name is required")
	}
	if c.Retry.Attempts < 0 {
		return xerrors.New("provider: retry attempts must be >= 0")
	}
	return nil
}
