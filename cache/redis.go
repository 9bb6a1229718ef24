package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/findata/cache/serializer"
	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/connector"
	"github.com/ceyewan/findata/metrics"
	"github.com/ceyewan/findata/xerrors"
)

// envelope Redis 中存储的条目信封：值的序列化字节加写入元数据。
// 新鲜性在读取侧根据 StoredAt/TTLMs 判断，Redis 自身的过期只负责保留窗口回收
type envelope struct {
	Data     []byte `json:"data" msgpack:"data"`
	StoredAt int64  `json:"stored_at" msgpack:"stored_at"` // Unix 毫秒
	TTLMs    int64  `json:"ttl_ms" msgpack:"ttl_ms"`
}

type redisCache struct {
	client         *redis.Client
	serializer     serializer.Serializer
	prefix         string
	maxStaleFactor int
	logger         clog.Logger
	counters       cacheCounters

	hits      atomic.Int64
	misses    atomic.Int64
	staleHits atomic.Int64
	sets      atomic.Int64

	now func() time.Time
}

// newRedis 创建 Redis 缓存实例
func newRedis(conn connector.RedisConnector, cfg *Config, logger clog.Logger, meter metrics.Meter) (Cache, error) {
	if conn == nil {
		return nil, xerrors.New("cache: redis connector is nil")
	}

	s, err := serializer.New(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	return &redisCache{
		client:         conn.GetClient(),
		serializer:     s,
		prefix:         cfg.Prefix,
		maxStaleFactor: cfg.MaxStaleFactor,
		logger:         logger,
		counters:       newCacheCounters(meter, "distributed"),
		now:            time.Now,
	}, nil
}

func (c *redisCache) getKey(key string) string {
	return c.prefix + key
}

func (c *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := c.serializer.Marshal(value)
	if err != nil {
		return xerrors.Wrap(err, "cache: marshal value")
	}

	env := envelope{
		Data:     data,
		StoredAt: c.now().UnixMilli(),
		TTLMs:    ttl.Milliseconds(),
	}
	payload, err := c.serializer.Marshal(&env)
	if err != nil {
		return xerrors.Wrap(err, "cache: marshal envelope")
	}

	// 物理过期 = 保留窗口，陈旧兜底读取在窗口内仍可命中。
	// 未指定 TTL 时与单机后端一致，按兜底保留时间回收而非永久驻留
	retention := ttl * time.Duration(c.maxStaleFactor)
	if ttl <= 0 {
		retention = retentionCeiling
	}
	if err := c.client.Set(ctx, c.getKey(key), payload, retention).Err(); err != nil {
		return xerrors.Wrap(err, "cache: redis set")
	}
	c.sets.Add(1)
	c.counters.set(ctx)
	return nil
}

func (c *redisCache) Get(ctx context.Context, key string, dest any) error {
	env, err := c.load(ctx, key)
	if err != nil {
		return err
	}

	if env.TTLMs > 0 && c.now().UnixMilli()-env.StoredAt >= env.TTLMs {
		c.misses.Add(1)
		c.counters.miss(ctx)
		return ErrCacheMiss
	}

	c.hits.Add(1)
	c.counters.hit(ctx)
	return c.serializer.Unmarshal(env.Data, dest)
}

func (c *redisCache) GetStale(ctx context.Context, key string, dest any) (time.Duration, error) {
	env, err := c.load(ctx, key)
	if err != nil {
		return 0, err
	}

	age := time.Duration(c.now().UnixMilli()-env.StoredAt) * time.Millisecond
	if env.TTLMs > 0 && age.Milliseconds() >= env.TTLMs {
		c.staleHits.Add(1)
		c.counters.staleHit(ctx)
	} else {
		c.hits.Add(1)
		c.counters.hit(ctx)
	}
	return age, c.serializer.Unmarshal(env.Data, dest)
}

func (c *redisCache) load(ctx context.Context, key string) (*envelope, error) {
	payload, err := c.client.Get(ctx, c.getKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			c.misses.Add(1)
			c.counters.miss(ctx)
			return nil, ErrCacheMiss
		}
		return nil, xerrors.Wrap(err, "cache: redis get")
	}

	var env envelope
	if err := c.serializer.Unmarshal(payload, &env); err != nil {
		return nil, xerrors.Wrap(err, "cache: unmarshal envelope")
	}
	return &env, nil
}

func (c *redisCache) Has(ctx context.Context, key string) (bool, error) {
	env, err := c.load(ctx, key)
	if err != nil {
		if xerrors.Is(err, ErrCacheMiss) {
			return false, nil
		}
		return false, err
	}
	if env.TTLMs > 0 && c.now().UnixMilli()-env.StoredAt >= env.TTLMs {
		return false, nil
	}
	return true, nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.getKey(key)).Err()
}

// Clear 按前缀扫描并删除，只影响本组件命名空间下的键
func (c *redisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return xerrors.Wrap(err, "cache: redis del")
		}
	}
	return iter.Err()
}

func (c *redisCache) Stats() Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var count int64
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		count++
	}

	return Snapshot{
		EntryCount: count,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		StaleHits:  c.staleHits.Load(),
		Sets:       c.sets.Load(),
	}
}

func (c *redisCache) Close() error {
	// Cache 不拥有 Redis 连接，由 Connector 管理
	return nil
}
