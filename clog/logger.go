package clog

// Logger 日志接口，提供结构化日志记录功能
//
// 支持四个日志级别：Debug、Info、Warn、Error。
// 所有方法均为并发安全。
//
// 基本使用：
//
//	logger.Info("provider fetch succeeded",
//	    clog.String("provider", "finnhub"),
//	    clog.Duration("elapsed", elapsed))
//
// 创建子 Logger：
//
//	child := logger.With(clog.String("request_id", id))
//	scoped := logger.WithNamespace("breaker")
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With 返回一个附带固定字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 返回一个附加命名空间的子 Logger
	// 多级命名空间以 "." 连接，作为日志中的 namespace 字段
	WithNamespace(parts ...string) Logger
}
