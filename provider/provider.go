// Package provider 定义外部行情数据源的统一访问契约。
//
// 每个具体数据源（Alpha Vantage、Finnhub、Twelve Data）实现 Client 接口，
// 只负责三件事：构造数据源特定的请求、解析数据源特定的响应、把数值与错误
// 边界归一化（如文本 "N/A" 价格归一为 NaN 而不是报错，避免批量请求因个别
// 字段缺失整体失败）。缓存、熔断、限流都是上层编排的事，客户端不感知。
//
// Registry 保存进程启动时装配的数据源配置，提供按优先级排序、可用性过滤
// 等纯查询，配置装配完成后不可变。
package provider

import (
	"context"
)

// Client 单个数据源的访问契约
type Client interface {
	// Name 返回数据源名，与 Config.Name 一致
	Name() string

	// FetchOne 按单个标的代码拉取归一化记录
	FetchOne(ctx context.Context, symbol string) (*Record, error)

	// FetchBatch 按一组标的代码拉取，symbols 数量超过数据源的 BatchSize 时报错。
	// 返回成功解析的记录，个别标的无数据不会使整批失败
	FetchBatch(ctx context.Context, symbols []string) (map[string]*Record, error)

	// HealthCheck 探测数据源是否可达
	HealthCheck(ctx context.Context) error
}
