// Package config 为 findata 提供统一的配置管理能力。
// 支持多源配置加载与配置验证，基于 Viper 实现。
//
// 特性：
//   - 多源配置加载：YAML/JSON 文件、环境变量、.env 文件
//   - 配置优先级：环境变量 > .env > 配置文件
//   - 接口优先设计：基于接口的 API，隐藏实现细节
//
// 提供商策略（侯选列表、优先级、超时、熔断阈值、限流预算）在进程启动时
// 一次性加载，之后不可变；本包不提供热更新。
//
// 基本使用：
//
//	loader := config.MustLoad(
//		config.WithConfigName("findata"),
//		config.WithConfigPaths("./config"),
//		config.WithEnvPrefix("FINDATA"),
//	)
//
//	var cfg AppConfig
//	if err := loader.Unmarshal(&cfg); err != nil {
//		panic(err)
//	}
package config

import (
	"context"

	"github.com/ceyewan/findata/xerrors"
)

// Loader 定义配置加载器的核心行为
// 职责：加载与解析进程启动时的静态配置
type Loader interface {
	// Load 加载配置并初始化内部状态
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Validate 验证当前配置的有效性
	Validate() error
}

// New 创建配置加载器（不立即加载，需调用 Load）
func New(opts ...Option) (Loader, error) {
	cfg := &Config{}
	for _, o := range opts {
		o(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newLoader(cfg)
}

// MustLoad 创建并立即加载配置，出错时 panic。仅用于初始化阶段。
func MustLoad(opts ...Option) Loader {
	l := xerrors.Must(New(opts...))
	if err := l.Load(context.Background()); err != nil {
		panic(err)
	}
	return l
}
