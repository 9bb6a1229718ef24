// Package metrics 为 findata 提供统一的指标收集能力。
// 基于 OpenTelemetry 标准构建，提供简洁的 Counter、Gauge、Histogram 指标接口。
//
// 快速开始：
//
//	meter, err := metrics.New(&metrics.Config{
//	    Enabled:     true,
//	    ServiceName: "findata",
//	    Port:        9090,
//	    Path:        "/metrics",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer meter.Shutdown(ctx)
//
//	counter, _ := meter.Counter("provider_requests_total", "Provider 请求总数")
//	counter.Inc(ctx, metrics.L("provider", "finnhub"), metrics.L("outcome", "success"))
package metrics

import "context"

// Counter 计数器接口
// 用于记录只能增加的累计值，例如 provider 请求数、缓存命中数等
type Counter interface {
	// Inc 将计数器增加 1
	Inc(ctx context.Context, labels ...Label)

	// Add 将计数器增加给定的值
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 仪表盘接口
// 用于记录可以任意增减的瞬时值，例如半开探测在途数、缓存条目数等
type Gauge interface {
	// Set 将 gauge 设置为给定的值
	Set(ctx context.Context, val float64, labels ...Label)

	// Inc 将 gauge 增加 1
	Inc(ctx context.Context, labels ...Label)

	// Dec 将 gauge 减少 1
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 直方图接口
// 用于记录值的分布情况，例如编排耗时、provider 响应耗时等
type Histogram interface {
	// Record 记录一个观测值
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标工厂接口
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 关闭 Meter，刷新所有指标
	Shutdown(ctx context.Context) error
}

// MetricOption 指标创建选项
type MetricOption func(*MetricOptions)

// MetricOptions 指标创建选项集合
type MetricOptions struct {
	// Unit 指标单位（如 "s", "ms", "By"）
	Unit string
}

// WithUnit 设置指标单位
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}
