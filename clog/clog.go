// Package clog 为 findata 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 支持层级命名空间，便于按组件过滤日志
//   - 零外部依赖（仅依赖 Go 标准库）
//   - 采用函数式选项模式，与其余组件保持一致
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	})
//	logger.Info("orchestrator ready", clog.String("mode", "fallback"))
//
// 组件内部通过 WithNamespace 派生子日志器：
//
//	cacheLogger := logger.WithNamespace("cache")
package clog

import "fmt"

// New 创建一个新的 Logger 实例
//
// config - 日志配置，如果为 nil 会使用默认配置
// opts   - 函数式选项列表，用于命名空间等配置
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig("findata")
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// 应用选项
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	return newLogger(config, o)
}

// NewDevDefaultConfig 返回适合开发环境的默认配置
// 控制台格式输出到 stdout，debug 级别
func NewDevDefaultConfig(namespace string) *Config {
	return &Config{
		Level:     "debug",
		Format:    "console",
		Output:    "stdout",
		Namespace: namespace,
	}
}

// NewProdDefaultConfig 返回适合生产环境的默认配置
// JSON 格式输出到 stdout，info 级别
func NewProdDefaultConfig(namespace string) *Config {
	return &Config{
		Level:     "info",
		Format:    "json",
		Output:    "stdout",
		Namespace: namespace,
	}
}
