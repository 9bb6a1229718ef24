package cache

import "github.com/ceyewan/findata/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("cache: config is nil")

	// ErrInvalidMode 不支持的缓存模式
	ErrInvalidMode = xerrors.New("cache: invalid mode")

	// ErrCacheMiss 条目不存在，或在新鲜读取路径上条目已过期
	ErrCacheMiss = xerrors.New("cache: miss")
)
