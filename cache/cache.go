// Package cache 提供面向行情数据的缓存组件，区分"新鲜读取"与"陈旧兜底"两种路径。
//
// 每个条目带有写入时间与逻辑 TTL：Get 只返回逻辑 TTL 内的新鲜数据；
// GetStale 允许读取已过期但仍在 MaxStaleFactor*TTL 保留窗口内的条目，
// 供编排层在所有数据源都失败时做降级返回。条目在写入时整体替换，从不原地修改。
//
// 支持单机模式 (standalone, 进程内 otter 缓存) 和分布式模式 (distributed, Redis)，
// 两种实现语义一致，上层无需感知后端。
//
// 基本使用：
//
//	cacheClient, _ := cache.New(&cache.Config{
//	    Mode:   "standalone",
//	    Prefix: "findata:",
//	}, cache.WithLogger(logger))
//
//	// 写入（TTL 由调用方按数据类型与用户层级选择）
//	err := cacheClient.Set(ctx, key, quote, 30*time.Second)
//
//	// 新鲜读取
//	var cached Quote
//	err = cacheClient.Get(ctx, key, &cached)
//
//	// 降级路径：读取陈旧条目并取得其年龄
//	age, err := cacheClient.GetStale(ctx, key, &cached)
package cache

import (
	"context"
	"time"

	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/connector"
	"github.com/ceyewan/findata/xerrors"
)

// Cache 定义了缓存组件的核心能力
type Cache interface {
	// Set 写入条目。ttl 是逻辑新鲜期；后端实际保留 MaxStaleFactor*ttl，
	// 超出新鲜期的条目只能通过 GetStale 读取。
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Get 读取新鲜条目。条目不存在或已过新鲜期时返回 ErrCacheMiss。
	Get(ctx context.Context, key string, dest any) error

	// GetStale 读取条目并返回其年龄，不区分新鲜与陈旧。
	// 仅当条目完全不存在（含超出保留窗口被清除）时返回 ErrCacheMiss。
	GetStale(ctx context.Context, key string, dest any) (age time.Duration, err error)

	// Has 检查条目是否存在且新鲜
	Has(ctx context.Context, key string) (bool, error)

	// Delete 删除条目
	Delete(ctx context.Context, key string) error

	// Clear 清空组件前缀下的所有条目
	Clear(ctx context.Context) error

	// Stats 返回运行期统计
	Stats() Snapshot

	// Close 释放组件自身持有的资源（不关闭外部注入的连接）
	Close() error
}

// Snapshot 缓存统计快照
type Snapshot struct {
	EntryCount int64 `json:"entry_count"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	StaleHits  int64 `json:"stale_hits"`
	Sets       int64 `json:"sets"`
}

// New 根据配置创建缓存实例
//
// Mode 为 "standalone" 时创建进程内 otter 缓存；
// 为 "distributed" 或为空时创建 Redis 缓存，需要通过 WithRedisConnector 注入连接器。
func New(cfg *Config, opts ...Option) (Cache, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	if opt.Logger == nil {
		opt.Logger = clog.Discard()
	}

	switch cfg.Mode {
	case "standalone":
		return newStandalone(cfg, opt.Logger, opt.Meter)
	case "distributed", "":
		if opt.RedisConn == nil {
			return nil, xerrors.New("cache: redis connector is required for distributed mode, use WithRedisConnector")
		}
		return newRedis(opt.RedisConn, cfg, opt.Logger, opt.Meter)
	default:
		return nil, xerrors.Wrapf(ErrInvalidMode, "mode %q", cfg.Mode)
	}
}

// NewWithRedis 直接基于已有连接器创建 Redis 缓存实例
func NewWithRedis(conn connector.RedisConnector, cfg *Config, opts ...Option) (Cache, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	if opt.Logger == nil {
		opt.Logger = clog.Discard()
	}

	return newRedis(conn, cfg, opt.Logger, opt.Meter)
}
