// Package connector 为 findata 提供统一的连接管理能力。
//
// 核心特性：
//   - 统一抽象：通过 Connector 接口提供一致的连接管理 API
//   - 类型安全：通过 TypedConnector[T] 泛型接口确保编译时类型检查
//   - 健康检查：检查连接状态，缓存最近一次结果
//   - 并发安全：所有公开方法均为并发安全
//
// 设计理念：
//   - 接口优先：定义清晰的接口契约，实现细节可替换
//   - 显式依赖注入：通过构造函数注入依赖，避免全局状态
//   - 幂等连接：Connect() 方法可安全重复调用
//   - 延迟连接：NewXXX() 创建连接器但不立即建立连接，Connect() 时才连接
//
// 基本使用：
//
//	cfg := &connector.RedisConfig{
//		Addr: "127.0.0.1:6379",
//		DB:   0,
//	}
//	conn, err := connector.NewRedis(cfg, connector.WithLogger(logger))
//	if err != nil {
//		panic(err)
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil {
//		panic(err)
//	}
//	client := conn.GetClient()
//
// 资源所有权：
//
//	Connector 拥有底层连接的生命周期，应通过 defer 确保 Close() 被调用。
//	组件（如 cache、ratelimit）仅借用 Connector，不应调用 Close()。
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Connector 定义所有连接器的通用行为。
type Connector interface {
	// Connect 建立连接。
	//
	// 此方法是幂等的，可安全多次调用。连接过程阻塞直到成功或失败。
	Connect(ctx context.Context) error

	// Close 关闭连接并释放资源。
	//
	// 此方法是幂等的，可安全多次调用。
	Close() error

	// HealthCheck 检查连接健康状态。
	//
	// 通过发送测试请求验证连接可用性，并更新内部健康状态缓存。
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回缓存的健康状态。
	//
	// 此方法无阻塞，直接返回最后一次 HealthCheck() 的结果。
	IsHealthy() bool

	// Name 返回连接实例名称，用于日志记录和指标标识。
	Name() string
}

// TypedConnector 提供类型安全的客户端访问。
//
// 类型参数 T 是客户端类型，如 *redis.Client。
type TypedConnector[T any] interface {
	Connector

	// GetClient 返回底层客户端实例。
	//
	// 注意：在 Connect() 之前或 Close() 之后调用可能返回 nil。
	GetClient() T
}

// RedisConnector Redis 连接器接口。
//
// 提供对 Redis 服务器的连接管理，供分布式缓存与分布式限流组件使用。
type RedisConnector interface {
	TypedConnector[*redis.Client]
}
